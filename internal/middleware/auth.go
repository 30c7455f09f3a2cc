package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/boomware/crosslist/internal/services"
)

// Auth accepts either a raw API key or a JWT in the Authorization header.
// API keys identify automation clients (bulk importers, sourcing scripts);
// JWTs identify interactive sessions. Both paths leave user_id, user_tier
// and api_key in the request context for the rate limiter.
func Auth(authService *services.AuthService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential, ok := bearerCredential(c)
		if !ok {
			return
		}

		// JWTs carry two dots; anything else is treated as an API key.
		if !strings.Contains(credential, ".") {
			authenticateAPIKey(c, authService, logger, credential)
			return
		}

		claims, err := authService.ValidateToken(c.Request.Context(), credential)
		if err != nil {
			logger.WithError(err).Warn("Invalid JWT token")
			abortUnauthorized(c, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_tier", claims.UserTier)
		c.Set("api_key", claims.APIKey)
		c.Next()
	}
}

func bearerCredential(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		abortUnauthorized(c, "MISSING_AUTHORIZATION", "Authorization header is required")
		return "", false
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		abortUnauthorized(c, "INVALID_AUTHORIZATION_FORMAT", "Authorization header must be in format 'Bearer <token>'")
		return "", false
	}
	return parts[1], true
}

func authenticateAPIKey(c *gin.Context, authService *services.AuthService, logger *logrus.Logger, apiKey string) {
	userTier, err := authService.ValidateAPIKey(apiKey)
	if err != nil {
		logger.WithError(err).Warn("Invalid API key")
		abortUnauthorized(c, "INVALID_API_KEY", "Invalid API key")
		return
	}

	// API key clients may pin a stable identity for rate limiting;
	// otherwise each request gets a throwaway one.
	userID := uuid.New()
	if userIDStr := c.GetHeader("X-User-ID"); userIDStr != "" {
		parsed, err := uuid.Parse(userIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_USER_ID",
					"message": "Invalid user ID format",
				},
			})
			c.Abort()
			return
		}
		userID = parsed
	}

	c.Set("user_id", userID)
	c.Set("user_tier", userTier)
	c.Set("api_key", apiKey)
	c.Next()
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
	c.Abort()
}

func GetUserFromContext(c *gin.Context) (uuid.UUID, string, string) {
	userID, _ := c.Get("user_id")
	userTier, _ := c.Get("user_tier")
	apiKey, _ := c.Get("api_key")

	return userID.(uuid.UUID), userTier.(string), apiKey.(string)
}

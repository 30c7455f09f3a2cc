package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/boomware/crosslist/internal/config"
	"github.com/boomware/crosslist/pkg/models"
)

// AuthService issues and validates seller session tokens. Sessions live in
// the hot redis tier so revocation takes effect across every API instance
// immediately.
type AuthService struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client
	jwtSecret   []byte
}

func NewAuthService(cfg *config.Config, logger *logrus.Logger, redisClient *redis.Client) *AuthService {
	return &AuthService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
		jwtSecret:   []byte(cfg.Auth.JWTSecret),
	}
}

func sessionKey(userID uuid.UUID) string {
	return "session:" + userID.String()
}

func (s *AuthService) GenerateToken(ctx context.Context, userID uuid.UUID, apiKey, userTier string) (string, error) {
	now := time.Now()
	claims := &models.JWTClaims{
		UserID:   userID,
		APIKey:   apiKey,
		UserTier: userTier,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.Auth.TokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "github.com/boomware/crosslist",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	// A redis outage must not block logins; the session record is only
	// needed for revocation.
	if err := s.redisClient.Set(ctx, sessionKey(userID), tokenString, s.config.Auth.TokenTTL).Err(); err != nil {
		s.logger.WithError(err).Warn("Failed to store session in Redis")
	}

	return tokenString, nil
}

func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	exists, err := s.redisClient.Exists(ctx, sessionKey(claims.UserID)).Result()
	if err != nil {
		// Signature and expiry already checked; accept the token when
		// the session store is unreachable.
		s.logger.WithError(err).Warn("Failed to check session in Redis")
	} else if exists == 0 {
		return nil, fmt.Errorf("session not found or expired")
	}

	return claims, nil
}

func (s *AuthService) RevokeToken(ctx context.Context, userID uuid.UUID) error {
	if err := s.redisClient.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// ValidateAPIKey resolves a raw API key to its rate-limit tier. Keys come
// from configuration; the demo keys are only available when nothing is
// configured.
func (s *AuthService) ValidateAPIKey(apiKey string) (string, error) {
	keys := s.config.Auth.APIKeys
	if len(keys) == 0 {
		keys = map[string]string{
			"demo-free-key":       "free",
			"demo-premium-key":    "premium",
			"demo-enterprise-key": "enterprise",
		}
	}

	if tier, exists := keys[apiKey]; exists {
		return tier, nil
	}
	return "", fmt.Errorf("invalid API key")
}

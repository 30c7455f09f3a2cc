package middleware

import (
	"compress/gzip"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
)

// CompressionMiddleware gzips responses for clients that accept it.
// Image and report payloads are the large ones; Prometheus scrapes its
// own endpoint and is left alone.
func CompressionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}
		if c.Request.URL.Path == "/metrics" || alreadyCompressed(c.GetHeader("Content-Type")) {
			c.Next()
			return
		}

		gz := gzip.NewWriter(c.Writer)
		defer gz.Close()

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")

		c.Writer = &gzipWriter{ResponseWriter: c.Writer, Writer: gz}
		c.Next()
	}
}

type gzipWriter struct {
	gin.ResponseWriter
	Writer io.Writer
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	// Tiny bodies cost more compressed than plain.
	if len(data) < 1024 {
		g.Header().Del("Content-Encoding")
		return g.ResponseWriter.Write(data)
	}
	return g.Writer.Write(data)
}

func (g *gzipWriter) WriteString(s string) (int, error) {
	return g.Write([]byte(s))
}

func alreadyCompressed(contentType string) bool {
	for _, prefix := range []string{"image/", "video/", "application/zip", "application/gzip"} {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

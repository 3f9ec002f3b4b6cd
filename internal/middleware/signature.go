package middleware

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"scanhub/internal/security"
)

// NonceStore remembers nonces for the skew window. Claim reports false when
// the nonce was already seen.
type NonceStore interface {
	Claim(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

type RedisNonceStore struct {
	client *redis.Client
}

func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func (s *RedisNonceStore) Claim(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, fmt.Sprintf("sig:callback:%s", nonce), "1", ttl).Result()
}

func NewReadCloser(b []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b))
}

// CallbackSignature authenticates pipeline callbacks: HMAC over method, path,
// body hash, date and nonce, a bounded clock skew and single-use nonces.
func CallbackSignature(secret string, maxSkew time.Duration, nonces NonceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		date, nonce, signature, err := security.ExtractSignatureHeaders(c.Request.Header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Signature required"})
			return
		}

		if err := security.CheckSkew(date, time.Now(), maxSkew); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Request expired"})
			return
		}

		rawBody, err := c.GetRawData()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid body"})
			return
		}
		c.Request.Body = NewReadCloser(rawBody)

		if !security.ValidateSignature(secret, signature, c.Request.Method, c.Request.URL.Path, rawBody, date, nonce) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}

		fresh, err := nonces.Claim(c.Request.Context(), nonce, 2*maxSkew)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if !fresh {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Replay detected"})
			return
		}

		c.Next()
	}
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"scanhub/internal/models"
)

const currentUserKey = "current_user"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.User, error)
}

// BearerToken returns the token from the Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// socketToken also accepts ?token=, since browsers cannot set headers on a
// websocket handshake.
func socketToken(r *http.Request) string {
	if token := BearerToken(r); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// Auth resolves the caller when a valid token is present. It never aborts;
// pair it with RequireUser on guarded routes.
func Auth(auth Authenticator) gin.HandlerFunc {
	return authenticate(auth, BearerToken)
}

// SocketAuth is Auth for the websocket upgrade route only.
func SocketAuth(auth Authenticator) gin.HandlerFunc {
	return authenticate(auth, socketToken)
}

func authenticate(auth Authenticator, tokenFrom func(*http.Request) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFrom(c.Request)
		if token == "" {
			c.Next()
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err == nil {
			c.Set(currentUserKey, user)
		}
		c.Next()
	}
}

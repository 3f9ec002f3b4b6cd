package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const sessionKey = "web_session"

const (
	loginMutation = `mutation Login($email: String!, $password: String!) {
  login(email: $email, password: $password) { token user { id name email picture } }
}`
	verifyTokenQuery = `query Me($token: String!) {
  verify_token(token: $token) { id name email picture verified created_at }
}`
	projectsQuery = `query Projects($options: ListOptions) {
  projects(options: $options) {
    total page per_page
    items { id name slug created_at updated_at thumbnail { url thumbnail_url } }
  }
}`
	projectQuery = `query Project($slug: String!) {
  project(slug: $slug) {
    id name slug created_at updated_at
    scans { total items { id name slug status created_at input_file { url thumbnail_url } splat_file { url } } }
  }
}`
	notificationsQuery = `query Notifications {
  notifications { id title type read metadata created_at }
}`
	readNotificationsMutation = `mutation ReadNotifications {
  read_notifications { id title type read metadata created_at }
}`
)

type API interface {
	Do(ctx context.Context, token, query string, variables map[string]interface{}, out interface{}) error
}

type HandlerSet struct {
	api      API
	sessions *SessionStore
	log      zerolog.Logger
}

func NewHandlerSet(api API, sessions *SessionStore, log zerolog.Logger) HandlerSet {
	return HandlerSet{api: api, sessions: sessions, log: log}
}

func (h HandlerSet) Register(router gin.IRouter) {
	router.POST("/login", h.Login)
	router.POST("/logout", h.Logout)

	authed := router.Group("", h.requireSession())
	authed.GET("/me", h.Me)
	authed.GET("/projects", h.Projects)
	authed.GET("/projects/:slug", h.Project)
	authed.GET("/notifications", h.Notifications)
	authed.POST("/notifications/read", h.ReadNotifications)
}

func (h HandlerSet) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := h.sessions.Load(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(sessionKey, session)
		c.Next()
	}
}

func currentSession(c *gin.Context) Session {
	session, _ := c.Get(sessionKey)
	s, _ := session.(Session)
	return s
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	var data struct {
		Login Session `json:"login"`
	}
	err := h.api.Do(c.Request.Context(), "", loginMutation, map[string]interface{}{
		"email":    req.Email,
		"password": req.Password,
	}, &data)
	if errors.Is(err, ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		h.apiError(c, err)
		return
	}

	if err := h.sessions.Save(c.Writer, data.Login); err != nil {
		h.log.Error().Err(err).Msg("encode session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": data.Login.User})
}

func (h HandlerSet) Logout(c *gin.Context) {
	h.sessions.Clear(c.Writer)
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) Me(c *gin.Context) {
	session := currentSession(c)
	h.load(c, verifyTokenQuery, map[string]interface{}{"token": session.Token}, "verify_token")
}

func (h HandlerSet) Projects(c *gin.Context) {
	options := map[string]interface{}{}
	if page, err := strconv.Atoi(c.Query("page")); err == nil {
		options["page"] = page
	}
	if perPage, err := strconv.Atoi(c.Query("per_page")); err == nil {
		options["per_page"] = perPage
	}
	for _, key := range []string{"sort", "order", "search"} {
		if v := c.Query(key); v != "" {
			options[key] = v
		}
	}
	h.load(c, projectsQuery, map[string]interface{}{"options": options}, "projects")
}

func (h HandlerSet) Project(c *gin.Context) {
	h.load(c, projectQuery, map[string]interface{}{"slug": c.Param("slug")}, "project")
}

func (h HandlerSet) Notifications(c *gin.Context) {
	h.load(c, notificationsQuery, nil, "notifications")
}

func (h HandlerSet) ReadNotifications(c *gin.Context) {
	h.load(c, readNotificationsMutation, nil, "read_notifications")
}

// load runs an operation with the session token and writes the selected
// root field as the response body.
func (h HandlerSet) load(c *gin.Context, query string, variables map[string]interface{}, field string) {
	var data map[string]json.RawMessage
	if err := h.api.Do(c.Request.Context(), currentSession(c).Token, query, variables, &data); err != nil {
		h.apiError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data[field])
}

func (h HandlerSet) apiError(c *gin.Context, err error) {
	if errors.Is(err, ErrUnauthorized) {
		h.sessions.Clear(c.Writer)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("api call failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "API unavailable"})
		return
	}

	status := http.StatusBadGateway
	switch apiErr.Code {
	case "VALIDATION_ERROR":
		status = http.StatusBadRequest
	case "NOT_FOUND":
		status = http.StatusNotFound
	case "CONFLICT":
		status = http.StatusConflict
	}
	body := gin.H{"error": apiErr.Message}
	if len(apiErr.Fields) > 0 {
		body["fields"] = apiErr.Fields
	}
	c.JSON(status, body)
}

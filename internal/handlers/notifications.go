package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"scanhub/internal/middleware"
)

func (h HandlerSet) upgrader() websocket.Upgrader {
	allowed := make(map[string]struct{}, len(h.cfg.AllowCORSOrigins))
	for _, origin := range h.cfg.AllowCORSOrigins {
		allowed[strings.TrimSpace(origin)] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// NotificationsSocket streams the caller's notifications as they are
// stored. Browsers pass the bearer token as ?token=.
func (h HandlerSet) NotificationsSocket(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", user.ID).Msg("websocket upgrade failed")
		return
	}

	h.log.Debug().Str("user_id", user.ID).Msg("websocket connected")
	h.deps.Hub.Serve(conn, user.ID)
}

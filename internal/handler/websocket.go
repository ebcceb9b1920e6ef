package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"wequack/internal/domain"
	"wequack/internal/hub"
	"wequack/internal/middleware"
	"wequack/internal/service"
	"wequack/pkg/logger"
)

type WebSocketHandler struct {
	authService service.AuthService
	router      *hub.Router
	upgrader    websocket.Upgrader
	log         logger.Logger
}

func NewWebSocketHandler(authService service.AuthService, router *hub.Router, allowedOrigins []string, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		authService: authService,
		router:      router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Клиенты без браузера не присылают Origin
				return origin == "" || middleware.OriginAllowed(allowedOrigins, origin)
			},
		},
		log: log,
	}
}

// Handle upgrades the request. A token on the handshake authenticates the
// session right away; without one the client must send a connect event.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	var user *domain.User
	if token := middleware.SocketToken(c); token != "" {
		u, err := h.authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			h.log.Debug("Rejected socket token", "error", err, "client_ip", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		user = u
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	h.router.Serve(c.Request.Context(), conn, user)
}

package websocket

import (
	"context"
	"easy-chat/domain"
	"easy-chat/services"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	ws "github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const (
	usernameParam    = "username"
	defaultReadLimit = 4096
	shutdownReason   = "server shutting down"
)

// Handler upgrades GET /ws?username=<name> and runs one chat session per socket.
type Handler struct {
	log       *slog.Logger
	service   services.IChatService
	upgrader  ws.Upgrader
	readLimit int64
}

// NewHandler An empty allowedOrigins list, or one containing "*", accepts any origin.
func NewHandler(log *slog.Logger, service services.IChatService, allowedOrigins []string, readLimit int64) *Handler {
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	return &Handler{
		log:       log,
		service:   service,
		readLimit: readLimit,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	allowed = lo.Map(allowed, func(o string, _ int) string {
		return strings.ToLower(strings.TrimSpace(o))
	})
	if len(allowed) == 0 || lo.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return lo.Contains(allowed, strings.ToLower(u.Scheme+"://"+u.Host))
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	ctx := r.Context()
	conn := NewConn(socket)

	participant, err := h.service.Join(ctx, r.URL.Query().Get(usernameParam), conn)
	if err != nil {
		return
	}
	done := make(chan struct{})
	defer close(done)
	defer h.service.Leave(context.WithoutCancel(ctx), participant.ID)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close(domain.CloseGoingAway, shutdownReason)
		case <-done:
		}
	}()

	if err = h.service.Ready(ctx, participant); err != nil {
		h.log.Debug("Session not ready", "participant_id", participant.ID, "error", err)
		return
	}

	socket.SetReadLimit(h.readLimit)
	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				h.log.Warn("Connection errored", "participant_id", participant.ID, "error", err)
			}
			return
		}
		if err = h.service.HandleFrame(ctx, participant, data); err != nil {
			h.log.Debug("Reply failed, closing session", "participant_id", participant.ID, "error", err)
			return
		}
	}
}

package tvs

import (
	"context"
	"log/slog"
	"net"
)

// Handler adapts the TVS session engine to internal/listener.Handler.
// Unlike CAPF, TVS assigns no session_id of its own: the client's
// session_id is read from the request and echoed back verbatim.
type Handler struct {
	Store  *Store
	Logger *slog.Logger
}

// NewHandler returns a Handler ready to be passed to listener.New.
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{Store: store, Logger: logger}
}

// HandleConn runs one TVS session to completion over conn.
func (h *Handler) HandleConn(ctx context.Context, conn net.Conn) {
	sess := NewSession(conn, h.Store, h.Logger)

	if err := sess.Run(ctx); err != nil {
		h.Logger.Warn("tvs session ended", "error", err)
	}
}

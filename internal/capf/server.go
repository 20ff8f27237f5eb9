package capf

import (
	"context"
	"log/slog"
	"net"

	"github.com/usecallmanagernz/daemons/internal/authverify"
	"github.com/usecallmanagernz/daemons/internal/issuer"
	"github.com/usecallmanagernz/daemons/internal/sessionid"
)

// Handler adapts the CAPF session engine to internal/listener.Handler,
// so the shared accept loop can drive it without knowing about
// sessions, stores, or issuance.
type Handler struct {
	Store           *Store
	Issuer          *issuer.Issuer
	Verifier        *authverify.Verifier
	CertificatesDir string
	Logger          *slog.Logger

	counter *sessionid.Counter
}

// NewHandler returns a Handler ready to be passed to listener.New.
func NewHandler(store *Store, iss *issuer.Issuer, verifier *authverify.Verifier, certificatesDir string, logger *slog.Logger) *Handler {
	return &Handler{
		Store:           store,
		Issuer:          iss,
		Verifier:        verifier,
		CertificatesDir: certificatesDir,
		Logger:          logger,
		counter:         sessionid.New(),
	}
}

// HandleConn runs one CAPF session to completion over conn.
func (h *Handler) HandleConn(ctx context.Context, conn net.Conn) {
	sessionID := h.counter.Next()

	sess := NewSession(conn, sessionID, h.Store, h.Issuer, h.Verifier, h.CertificatesDir, h.Logger)

	if err := sess.Run(ctx); err != nil {
		h.Logger.Warn("capf session ended", "session_id", sessionID, "error", err)
	}
}

package tvs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"regexp"

	"github.com/usecallmanagernz/daemons/internal/apperr"
	"github.com/usecallmanagernz/daemons/internal/tlv"
)

// deviceNameSyntax is spec.md §4.5's required DEVICE_NAME format,
// after its 1-byte device-type prefix is stripped.
var deviceNameSyntax = regexp.MustCompile(`^CP-[0-9]{4}-SEP[0-9A-F]{12}$`)

// Session runs one TVS connection: a single VERIFY_REQUEST /
// VERIFY_RESPONSE exchange (spec.md §4.5).
type Session struct {
	conn   net.Conn
	store  *Store
	logger *slog.Logger

	codec tlv.TVSCodec
}

// NewSession returns a Session bound to one accepted connection.
func NewSession(conn net.Conn, store *Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{conn: conn, store: store, logger: logger.With("peer", conn.RemoteAddr())}
}

// Run reads one VERIFY_REQUEST and answers one VERIFY_RESPONSE, then
// returns. It never panics past its own root (spec.md §7).
func (sess *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			sess.logger.Error("session panicked", "panic", r)
			err = fmt.Errorf("session panic: %v", r)
		}
	}()

	command, sessionID, elements, err := sess.codec.DecodeFrame(sess.conn)
	if err != nil {
		return err
	}

	if command != cmdVerifyRequest {
		return apperr.NewProtocolError(fmt.Sprintf("unexpected command 0x%02x, want VERIFY_REQUEST", command))
	}

	if err := verifyRequestSchema.Validate(elements); err != nil {
		return err
	}

	deviceName, err := decodeDeviceName(elements)
	if err != nil {
		return err
	}

	if !deviceNameSyntax.MatchString(deviceName) {
		return apperr.NewProtocolError(fmt.Sprintf("malformed device name %q", deviceName))
	}

	der, ok := elements.Bytes(tagCertificate)
	if !ok {
		return apperr.NewProtocolError("missing required element tag CERTIFICATE")
	}

	fingerprint := sha256.Sum256(der)
	fingerprintHex := hex.EncodeToString(fingerprint[:])

	record, err := sess.store.GetTrustRecord(ctx, fingerprintHex)
	if err != nil {
		return err
	}

	var body []byte

	if record == nil {
		body = tlv.NewBuilder().PutUint8(tagStatus, statusInvalid).Bytes()
	} else {
		roles, err := ParseRolesCSV(record.Roles)
		if err != nil {
			return err
		}

		packed, err := PackRoles(roles)
		if err != nil {
			return err
		}

		body = tlv.NewBuilder().
			PutUint8(tagStatus, statusValid).
			PutBytes(tagRoles, packed).
			PutUint32(tagTTL, uint32(record.TTL)).
			Bytes()
	}

	frame, err := sess.codec.EncodeFrame(cmdVerifyResponse, sessionID, body)
	if err != nil {
		return err
	}

	return tlv.WriteFrame(sess.conn, frame)
}

// decodeDeviceName strips DEVICE_NAME's 1-byte device-type prefix and
// returns the remaining UTF-8 text.
func decodeDeviceName(elements tlv.Elements) (string, error) {
	raw, ok := elements.Bytes(tagDeviceName)
	if !ok {
		return "", apperr.NewProtocolError("missing required element tag DEVICE_NAME")
	}

	if len(raw) < 1 {
		return "", apperr.NewProtocolError("truncated DEVICE_NAME element")
	}

	return string(raw[1:]), nil
}

package capf

import (
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/usecallmanagernz/daemons/internal/apperr"
	"github.com/usecallmanagernz/daemons/internal/authverify"
	"github.com/usecallmanagernz/daemons/internal/hexutil"
	"github.com/usecallmanagernz/daemons/internal/issuer"
	"github.com/usecallmanagernz/daemons/internal/tlv"
)

// Session runs one CAPF connection's state machine (spec.md §4.2)
// from its first AUTH_REQUEST to its final END_SESSION.
type Session struct {
	conn            net.Conn
	sessionID       uint32
	store           *Store
	issuer          *issuer.Issuer
	verifier        *authverify.Verifier
	certificatesDir string
	logger          *slog.Logger

	codec tlv.CAPFCodec
}

// NewSession returns a Session bound to one accepted connection. The
// caller owns assigning sessionID (spec.md §3: server-assigned,
// monotonic).
func NewSession(conn net.Conn, sessionID uint32, store *Store, iss *issuer.Issuer, verifier *authverify.Verifier, certificatesDir string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		conn:            conn,
		sessionID:       sessionID,
		store:           store,
		issuer:          iss,
		verifier:        verifier,
		certificatesDir: certificatesDir,
		logger:          logger.With("peer", conn.RemoteAddr()),
	}
}

// Run drives the session to completion. It never panics past its own
// root: an unexpected panic is recovered, logged, and returned as an
// error (spec.md §7).
func (sess *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			sess.logger.Error("session panicked", "panic", r)
			err = fmt.Errorf("session panic: %v", r)
		}
	}()

	device, authErr := sess.authenticate(ctx)
	if authErr != nil {
		switch apperr.Classify(authErr) {
		case apperr.KindProtocol, apperr.KindAuth:
			sess.endBestEffort(reasonInvalidElement)
		}

		return authErr
	}

	if device == nil {
		sess.endBestEffort(reasonUnknownDevice)

		return nil
	}

	switch device.Operation {
	case OperationInstall:
		err = sess.install(ctx, device)
	case OperationFetch:
		err = sess.fetch(ctx, device)
	case OperationDelete:
		err = sess.delete(ctx, device)
	default:
		err = sess.none()
	}

	if err != nil {
		sess.logger.Warn("session ended with error", "error", err)

		switch apperr.Classify(err) {
		case apperr.KindProtocol, apperr.KindAuth:
			sess.endBestEffort(reasonInvalidElement)
		}
	}

	return err
}

// endBestEffort attempts one final END_SESSION frame, ignoring any
// error: the transport may already be gone (spec.md §7, §9).
func (sess *Session) endBestEffort(reason byte) {
	body := tlv.NewBuilder().PutUint8(tagReason, reason).Bytes()

	frame, err := sess.codec.EncodeFrame(cmdEndSession, sess.sessionID, body)
	if err != nil {
		return
	}

	_ = tlv.WriteFrame(sess.conn, frame)
}

func (sess *Session) sendFrame(command byte, body []byte) error {
	frame, err := sess.codec.EncodeFrame(command, sess.sessionID, body)
	if err != nil {
		return err
	}

	return tlv.WriteFrame(sess.conn, frame)
}

// readFrame reads one frame and checks its session_id echoes the
// one this server assigned (spec.md §4.2 ordering invariants).
func (sess *Session) readFrame() (command byte, elements tlv.Elements, err error) {
	command, sessionID, elements, err := sess.codec.DecodeFrame(sess.conn)
	if err != nil {
		return 0, nil, err
	}

	if sessionID != sess.sessionID {
		return 0, nil, apperr.NewProtocolError(
			fmt.Sprintf("session_id mismatch: got %d, want %d", sessionID, sess.sessionID))
	}

	return command, elements, nil
}

// authenticate runs the HELLO -> AUTHENTICATED transition. It returns
// (nil, nil) for an unknown device (the caller sends
// END_SESSION{UNKNOWN_DEVICE} and stops, which is not itself an
// error) and a non-nil error for any protocol or credential failure.
func (sess *Session) authenticate(ctx context.Context) (*DeviceRecord, error) {
	authReqBody := tlv.NewBuilder().
		PutUint8(tagVersion, protocolVersion).
		PutUint8(tagAuthType, authTypeNone).
		Bytes()

	if err := sess.sendFrame(cmdAuthRequest, authReqBody); err != nil {
		return nil, err
	}

	command, elements, err := sess.readFrame()
	if err != nil {
		return nil, err
	}

	if command != cmdAuthResponse {
		return nil, apperr.NewProtocolError(fmt.Sprintf("unexpected command 0x%02x, want AUTH_RESPONSE", command))
	}

	if err := authResponseSchema.Validate(elements); err != nil {
		return nil, err
	}

	version, _ := elements.Uint8(tagVersion)
	if version != protocolVersion {
		return nil, apperr.NewProtocolError(fmt.Sprintf("unsupported VERSION %d", version))
	}

	deviceName, _ := elements.String(tagDeviceName)

	device, err := sess.store.GetDevice(ctx, deviceName)
	if err != nil {
		return nil, err
	}

	if device == nil {
		return nil, nil
	}

	if err := sess.checkCredentials(device, elements); err != nil {
		return nil, err
	}

	return device, nil
}

func (sess *Session) checkCredentials(device *DeviceRecord, elements tlv.Elements) error {
	switch device.AuthMode {
	case AuthModeNoPassword:
		return nil
	case AuthModePassword:
		password, ok := elements.String(tagPassword)
		if !ok || password != device.Password {
			return apperr.NewAuthError("bad password")
		}

		return nil
	case AuthModeCertificate:
		certType, der, ok, err := elements.Certificate(tagCertificate)
		if err != nil {
			return err
		}

		if !ok {
			return apperr.NewProtocolError("missing required element tag CERTIFICATE")
		}

		_ = certType

		signedData, _ := elements.Bytes(tagSignedData)

		hashAlgo, sha2Sig, ok, err := elements.SHA2Signed(tagSHA2SignedData)
		if err != nil {
			return err
		}

		if !ok {
			return apperr.NewProtocolError("missing required element tag SHA2_SIGNED_DATA")
		}

		sudiData, _ := elements.Bytes(tagSUDIData)

		return sess.verifier.VerifyPhoneAuth(authverify.PhoneAuthInput{
			SessionID:      sess.sessionID,
			DeviceName:     device.DeviceName,
			CertificateDER: der,
			SignedData:     signedData,
			SHA2HashAlgo:   hashAlgo,
			SHA2Signature:  sha2Sig,
			SUDIData:       sudiData,
		})
	default:
		return apperr.NewConfigError("auth_mode", fmt.Errorf("unknown auth mode %q", device.AuthMode))
	}
}

// install drives KEYGEN_WAIT -> STORE_WAIT (spec.md §4.2 Install).
func (sess *Session) install(ctx context.Context, device *DeviceRecord) error {
	keyGenBody := tlv.NewBuilder()

	switch {
	case device.KeySize != nil:
		keyGenBody.PutUint8(tagKeyType, keyTypeRSA).PutUint16(tagKeySize, uint16(*device.KeySize))
	case device.Curve != nil:
		curveCode, err := curveCodeFor(*device.Curve)
		if err != nil {
			return err
		}

		keyGenBody.PutUint8(tagKeyType, keyTypeEC).PutUint8(tagCurve, curveCode)
	default:
		return apperr.NewConfigError("key_size/curve", fmt.Errorf("device %s has operation=install but no key material configured", device.DeviceName))
	}

	if err := sess.sendFrame(cmdKeyGenRequest, keyGenBody.Bytes()); err != nil {
		return err
	}

	command, elements, err := sess.readFrame()
	if err != nil {
		return err
	}

	// Permissive per spec.md §9: accept an intermediate
	// REQUEST_IN_PROGRESS heartbeat for both RSA and EC keygen.
	if command == cmdRequestInProgress {
		command, elements, err = sess.readFrame()
		if err != nil {
			return err
		}
	}

	if command != cmdKeyGenResponse {
		return apperr.NewProtocolError(fmt.Sprintf("unexpected command 0x%02x, want KEY_GEN_RESPONSE", command))
	}

	if err := keyGenResponseSchema.Validate(elements); err != nil {
		return err
	}

	pubDER, ok := elements.Bytes(tagPublicKey)
	if !ok {
		return apperr.NewProtocolError("missing required element tag PUBLIC_KEY")
	}

	pub, err := x509.ParsePKIXPublicKey(pubDER)
	if err != nil {
		return apperr.WrapProtocolError("malformed PUBLIC_KEY", err)
	}

	der, cert, err := sess.issuer.IssueLeaf(pub, device.DeviceName)
	if err != nil {
		return err
	}

	pem := issuer.PEMEncode(der)

	if err := sess.writeCertificateFile(device.DeviceName, pem); err != nil {
		return err
	}

	serialHex := hexEncodeSerial(cert)

	if err := sess.store.UpdateIssued(ctx, device.DeviceName, serialHex, string(pem), cert.NotBefore, cert.NotAfter); err != nil {
		return err
	}

	storeCertBody := tlv.NewBuilder().
		PutUint8(tagCertType, certTypeLSC).
		PutCertificate(tagCertificate, certTypeLSC, der).
		Bytes()

	if err := sess.sendFrame(cmdStoreCertRequest, storeCertBody); err != nil {
		return err
	}

	command, elements, err = sess.readFrame()
	if err != nil {
		return err
	}

	if command != cmdStoreCertResponse {
		return apperr.NewProtocolError(fmt.Sprintf("unexpected command 0x%02x, want STORE_CERT_RESPONSE", command))
	}

	if err := storeCertResponseSchema.Validate(elements); err != nil {
		return err
	}

	// The STORE_CERT_RESPONSE's own REASON does not change the
	// outcome: the session always finishes UPDATE_CERTIFICATE here
	// per spec.md §4.2.
	return sess.end(reasonUpdateCertificate)
}

// fetch drives FETCH_WAIT (spec.md §4.2 Fetch).
func (sess *Session) fetch(ctx context.Context, device *DeviceRecord) error {
	if err := sess.sendFrame(cmdFetchCertRequest, nil); err != nil {
		return err
	}

	command, elements, err := sess.readFrame()
	if err != nil {
		return err
	}

	if command != cmdFetchCertResponse {
		return apperr.NewProtocolError(fmt.Sprintf("unexpected command 0x%02x, want FETCH_CERT_RESPONSE", command))
	}

	if err := fetchCertResponseSchema.Validate(elements); err != nil {
		return err
	}

	reason, _ := elements.Uint8(tagReason)
	_, der, present, err := elements.Certificate(tagCertificate)

	if err != nil {
		return err
	}

	if reason == reasonUpdateCertificate && present {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return apperr.WrapProtocolError("malformed fetched certificate", err)
		}

		pem := issuer.PEMEncode(der)

		if err := sess.writeCertificateFile(device.DeviceName, pem); err != nil {
			return err
		}

		serialHex := hexEncodeSerial(cert)

		if err := sess.store.UpdateIssued(ctx, device.DeviceName, serialHex, string(pem), cert.NotBefore, cert.NotAfter); err != nil {
			return err
		}
	} else {
		if err := sess.store.SetOperationNone(ctx, device.DeviceName); err != nil {
			return err
		}
	}

	return sess.end(reasonNoAction)
}

// delete drives DELETE_WAIT (spec.md §4.2 Delete).
func (sess *Session) delete(ctx context.Context, device *DeviceRecord) error {
	if err := sess.sendFrame(cmdDeleteCertRequest, nil); err != nil {
		return err
	}

	command, elements, err := sess.readFrame()
	if err != nil {
		return err
	}

	if command != cmdDeleteCertResponse {
		return apperr.NewProtocolError(fmt.Sprintf("unexpected command 0x%02x, want DELETE_CERT_RESPONSE", command))
	}

	if err := deleteCertResponseSchema.Validate(elements); err != nil {
		return err
	}

	reason, _ := elements.Uint8(tagReason)

	if reason == reasonUpdateCertificate {
		if err := sess.store.ClearCertificate(ctx, device.DeviceName); err != nil {
			return err
		}

		path := sess.certificatePath(device.DeviceName)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return apperr.NewIOError(err)
		}
	}

	return sess.end(reasonUpdateCertificate)
}

// none emits END_SESSION{NO_ACTION} directly (spec.md §4.2 None).
func (sess *Session) none() error {
	return sess.end(reasonNoAction)
}

func (sess *Session) end(reason byte) error {
	body := tlv.NewBuilder().PutUint8(tagReason, reason).Bytes()

	return sess.sendFrame(cmdEndSession, body)
}

func (sess *Session) certificatePath(deviceName string) string {
	return filepath.Join(sess.certificatesDir, deviceName+".pem")
}

func (sess *Session) writeCertificateFile(deviceName string, pem []byte) error {
	path := sess.certificatePath(deviceName)

	if err := os.WriteFile(path, pem, 0o644); err != nil {
		return apperr.NewIOError(fmt.Errorf("write %s: %w", path, err))
	}

	return nil
}

func hexEncodeSerial(cert *x509.Certificate) string {
	return hexutil.EncodeSerial(cert.SerialNumber.Bytes())
}

func curveCodeFor(curve string) (byte, error) {
	for code, name := range curveNames {
		if name == curve {
			return code, nil
		}
	}

	return 0, apperr.NewConfigError("curve", fmt.Errorf("unknown curve %q", curve))
}

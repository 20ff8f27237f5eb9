package tlv

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/usecallmanagernz/daemons/internal/apperr"
)

// CAPF frame: protocol_id(u8) | command(u8) | session_id(u32) |
// body_length(u16). protocolIDCAPF is the fixed first byte.
const (
	capfHeaderLen  = 8
	protocolIDCAPF = 85
)

// TVS frame: protocol_id(u8) | version(u8) | command(u8) |
// reserved(u8) | session_id(u32) | body_length(u16).
const (
	tvsHeaderLen   = 10
	protocolIDTVS  = 87
	tvsVersion     = 1
	tvsReservedVal = 0
)

// maxBodyLength is the largest body_length a u16 field can carry.
const maxBodyLength = 0xFFFF

// CAPFCodec encodes and decodes CAPF's 8-byte-header frames.
type CAPFCodec struct{}

// EncodeFrame builds a complete CAPF frame (header + body) as a
// single byte slice, for a single atomic transport write.
func (CAPFCodec) EncodeFrame(command byte, sessionID uint32, body []byte) ([]byte, error) {
	if len(body) > maxBodyLength {
		return nil, apperr.NewProtocolError(fmt.Sprintf("body too large: %d bytes", len(body)))
	}

	frame := make([]byte, 0, capfHeaderLen+len(body))
	frame = append(frame, protocolIDCAPF, command)
	frame = binary.BigEndian.AppendUint32(frame, sessionID)
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(body)))
	frame = append(frame, body...)

	return frame, nil
}

// DecodeFrame reads one CAPF frame from r: its fixed header, then
// exactly body_length body bytes, then parses the body into Elements.
func (CAPFCodec) DecodeFrame(r io.Reader) (command byte, sessionID uint32, elements Elements, err error) {
	header := make([]byte, capfHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, 0, nil, apperr.NewIOError(err)
	}

	if header[0] != protocolIDCAPF {
		return 0, 0, nil, apperr.NewProtocolError(fmt.Sprintf("bad protocol id 0x%02x", header[0]))
	}

	command = header[1]
	sessionID = binary.BigEndian.Uint32(header[2:6])
	bodyLen := binary.BigEndian.Uint16(header[6:8])

	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, 0, nil, apperr.NewIOError(err)
		}
	}

	elements, err = ParseElements(body)
	if err != nil {
		return 0, 0, nil, err
	}

	return command, sessionID, elements, nil
}

// TVSCodec encodes and decodes TVS's 10-byte-header frames.
type TVSCodec struct{}

// EncodeFrame builds a complete TVS frame as a single byte slice.
func (TVSCodec) EncodeFrame(command byte, sessionID uint32, body []byte) ([]byte, error) {
	if len(body) > maxBodyLength {
		return nil, apperr.NewProtocolError(fmt.Sprintf("body too large: %d bytes", len(body)))
	}

	frame := make([]byte, 0, tvsHeaderLen+len(body))
	frame = append(frame, protocolIDTVS, tvsVersion, command, tvsReservedVal)
	frame = binary.BigEndian.AppendUint32(frame, sessionID)
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(body)))
	frame = append(frame, body...)

	return frame, nil
}

// DecodeFrame reads one TVS frame from r.
func (TVSCodec) DecodeFrame(r io.Reader) (command byte, sessionID uint32, elements Elements, err error) {
	header := make([]byte, tvsHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, 0, nil, apperr.NewIOError(err)
	}

	if header[0] != protocolIDTVS {
		return 0, 0, nil, apperr.NewProtocolError(fmt.Sprintf("bad protocol id 0x%02x", header[0]))
	}

	if header[1] != tvsVersion {
		return 0, 0, nil, apperr.NewProtocolError(fmt.Sprintf("bad version 0x%02x", header[1]))
	}

	command = header[2]
	sessionID = binary.BigEndian.Uint32(header[4:8])
	bodyLen := binary.BigEndian.Uint16(header[8:10])

	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, 0, nil, apperr.NewIOError(err)
		}
	}

	elements, err = ParseElements(body)
	if err != nil {
		return 0, 0, nil, err
	}

	return command, sessionID, elements, nil
}

// WriteFrame writes a fully-built frame to w in a single Write call.
// Cisco phones fail if a frame is split across kernel write calls, so
// callers must never stream header and body separately.
func WriteFrame(w io.Writer, frame []byte) error {
	n, err := w.Write(frame)
	if err != nil {
		return apperr.NewIOError(err)
	}

	if n != len(frame) {
		return apperr.NewIOError(fmt.Errorf("short write: wrote %d of %d bytes", n, len(frame)))
	}

	return nil
}

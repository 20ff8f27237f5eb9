package tlv

import (
	"encoding/binary"
	"fmt"

	"github.com/usecallmanagernz/daemons/internal/apperr"
)

// Tag identifies an element within a frame body. Tag codes are
// meaningful only within the protocol (CAPF or TVS) that defines
// them; the two protocols reuse small integers for unrelated
// elements.
type Tag uint8

// Elements is the decoded body of a frame: tag -> raw payload bytes,
// exactly as they appeared on the wire (NUL terminators and inner
// certificate headers included). Duplicate tags overwrite: decoding
// keeps only the last occurrence, matching the codec's last-wins
// guarantee.
type Elements map[Tag][]byte

// Schema names, for a single command, which tags are required and
// which are merely allowed. Any element tag present in a frame that
// is not in Allowed is an unknown-tag protocol error; any tag in
// Required that is absent is a missing-required-element protocol
// error.
type Schema struct {
	Required []Tag
	Allowed  []Tag
}

// Validate checks e against schema, returning a *apperr.ProtocolError
// on the first violation found: an unknown tag is reported before a
// missing required tag, since an unknown tag is a framing problem
// that makes the rest of the body untrustworthy.
func (schema Schema) Validate(e Elements) error {
	allowed := make(map[Tag]bool, len(schema.Allowed))
	for _, tag := range schema.Allowed {
		allowed[tag] = true
	}

	for tag := range e {
		if !allowed[tag] {
			return apperr.NewProtocolError(fmt.Sprintf("unknown element tag 0x%02x", byte(tag)))
		}
	}

	for _, tag := range schema.Required {
		if _, ok := e[tag]; !ok {
			return apperr.NewProtocolError(fmt.Sprintf("missing required element tag 0x%02x", byte(tag)))
		}
	}

	return nil
}

// ParseElements decodes a frame body into an Elements map. Each
// element is tag(u8) | length(u16) | value(length bytes), big-endian.
// A truncated header or value is a protocol error.
func ParseElements(body []byte) (Elements, error) {
	elements := make(Elements)

	for len(body) > 0 {
		if len(body) < 3 {
			return nil, apperr.NewProtocolError("truncated element header")
		}

		tag := Tag(body[0])
		length := binary.BigEndian.Uint16(body[1:3])
		body = body[3:]

		if int(length) > len(body) {
			return nil, apperr.NewProtocolError("truncated element value")
		}

		elements[tag] = body[:length]
		body = body[length:]
	}

	return elements, nil
}

// Uint8 returns the single-byte numeric value of tag.
func (e Elements) Uint8(tag Tag) (byte, bool) {
	v, ok := e[tag]
	if !ok || len(v) != 1 {
		return 0, false
	}

	return v[0], true
}

// Uint16 returns the big-endian two-byte numeric value of tag.
func (e Elements) Uint16(tag Tag) (uint16, bool) {
	v, ok := e[tag]
	if !ok || len(v) != 2 {
		return 0, false
	}

	return binary.BigEndian.Uint16(v), true
}

// Uint32 returns the big-endian four-byte numeric value of tag.
func (e Elements) Uint32(tag Tag) (uint32, bool) {
	v, ok := e[tag]
	if !ok || len(v) != 4 {
		return 0, false
	}

	return binary.BigEndian.Uint32(v), true
}

// Bytes returns the raw payload of tag, unmodified.
func (e Elements) Bytes(tag Tag) ([]byte, bool) {
	v, ok := e[tag]

	return v, ok
}

// String returns the UTF-8 string value of tag with its trailing NUL
// stripped. Producers append the NUL; it is counted in the wire
// length but absent from the decoded string.
func (e Elements) String(tag Tag) (string, bool) {
	v, ok := e[tag]
	if !ok {
		return "", false
	}

	if len(v) > 0 && v[len(v)-1] == 0x00 {
		v = v[:len(v)-1]
	}

	return string(v), true
}

// certificateInnerHeaderLen is the width of the CERTIFICATE element's
// inner wrapper: 01 | innerLen(u16) | 00 | cert_type(u8).
const certificateInnerHeaderLen = 5

// Certificate unwraps a CERTIFICATE element's inner 5-byte header and
// returns the certificate type and the raw DER payload.
func (e Elements) Certificate(tag Tag) (certType byte, der []byte, ok bool, err error) {
	v, present := e[tag]
	if !present {
		return 0, nil, false, nil
	}

	if len(v) < certificateInnerHeaderLen {
		return 0, nil, true, apperr.NewProtocolError("truncated certificate element")
	}

	if v[0] != 0x01 {
		return 0, nil, true, apperr.NewProtocolError("unexpected certificate element marker")
	}

	innerLen := binary.BigEndian.Uint16(v[1:3])
	if int(innerLen) != len(v)-3 {
		return 0, nil, true, apperr.NewProtocolError("certificate element inner length mismatch")
	}

	certType = v[4]
	der = v[certificateInnerHeaderLen:]

	return certType, der, true, nil
}

// SHA2Signed unwraps a SHA2_SIGNED_DATA element: hash_algo(u8) |
// len(u16) | signature.
func (e Elements) SHA2Signed(tag Tag) (hashAlgo byte, signature []byte, ok bool, err error) {
	v, present := e[tag]
	if !present {
		return 0, nil, false, nil
	}

	if len(v) < 3 {
		return 0, nil, true, apperr.NewProtocolError("truncated SHA2 signed-data element")
	}

	sigLen := binary.BigEndian.Uint16(v[1:3])
	if int(sigLen) != len(v)-3 {
		return 0, nil, true, apperr.NewProtocolError("SHA2 signed-data length mismatch")
	}

	return v[0], v[3:], true, nil
}

// Builder accumulates elements in call order and produces the final
// frame body bytes. Order matters on the wire even though decoding is
// order-independent, so callers should build commands in the order
// the spec lists their elements.
type Builder struct {
	buf []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) putHeader(tag Tag, length int) {
	b.buf = append(b.buf, byte(tag))
	b.buf = binary.BigEndian.AppendUint16(b.buf, uint16(length))
}

// PutUint8 appends a single-byte numeric element.
func (b *Builder) PutUint8(tag Tag, v byte) *Builder {
	b.putHeader(tag, 1)
	b.buf = append(b.buf, v)

	return b
}

// PutUint16 appends a big-endian two-byte numeric element.
func (b *Builder) PutUint16(tag Tag, v uint16) *Builder {
	b.putHeader(tag, 2)
	b.buf = binary.BigEndian.AppendUint16(b.buf, v)

	return b
}

// PutUint32 appends a big-endian four-byte numeric element.
func (b *Builder) PutUint32(tag Tag, v uint32) *Builder {
	b.putHeader(tag, 4)
	b.buf = binary.BigEndian.AppendUint32(b.buf, v)

	return b
}

// PutBytes appends a raw-bytes element, unmodified.
func (b *Builder) PutBytes(tag Tag, v []byte) *Builder {
	b.putHeader(tag, len(v))
	b.buf = append(b.buf, v...)

	return b
}

// PutString appends a UTF-8 string element with a trailing NUL,
// counted in the wire length.
func (b *Builder) PutString(tag Tag, s string) *Builder {
	v := append([]byte(s), 0x00)
	b.putHeader(tag, len(v))
	b.buf = append(b.buf, v...)

	return b
}

// PutCertificate appends a CERTIFICATE element, wrapping der in the
// 5-byte inner header: 01 | innerLen(u16) | 00 | cert_type(u8).
func (b *Builder) PutCertificate(tag Tag, certType byte, der []byte) *Builder {
	innerLen := len(der) + 2

	v := make([]byte, 0, certificateInnerHeaderLen+len(der))
	v = append(v, 0x01)
	v = binary.BigEndian.AppendUint16(v, uint16(innerLen))
	v = append(v, 0x00, certType)
	v = append(v, der...)

	b.putHeader(tag, len(v))
	b.buf = append(b.buf, v...)

	return b
}

// PutSHA2Signed appends a SHA2_SIGNED_DATA element: hash_algo(u8) |
// len(u16) | signature.
func (b *Builder) PutSHA2Signed(tag Tag, hashAlgo byte, signature []byte) *Builder {
	v := make([]byte, 0, 3+len(signature))
	v = append(v, hashAlgo)
	v = binary.BigEndian.AppendUint16(v, uint16(len(signature)))
	v = append(v, signature...)

	b.putHeader(tag, len(v))
	b.buf = append(b.buf, v...)

	return b
}

// Bytes returns the accumulated body bytes.
func (b *Builder) Bytes() []byte {
	return b.buf
}

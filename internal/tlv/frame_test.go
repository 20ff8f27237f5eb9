package tlv_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/usecallmanagernz/daemons/internal/tlv"
)

func TestCAPFCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	body := tlv.NewBuilder().PutUint8(1, 3).PutString(2, "SEP000000000001").Bytes()

	codec := tlv.CAPFCodec{}

	frame, err := codec.EncodeFrame(5, 42, body)
	require.NoError(t, err)
	require.Equal(t, byte(85), frame[0], "CAPF protocol id must be 85")
	require.Equal(t, byte(5), frame[1])

	var buf bytes.Buffer

	require.NoError(t, tlv.WriteFrame(&buf, frame))

	command, sessionID, elements, err := codec.DecodeFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, byte(5), command)
	require.Equal(t, uint32(42), sessionID)

	v, ok := elements.Uint8(1)
	require.True(t, ok)
	require.Equal(t, byte(3), v)

	s, ok := elements.String(2)
	require.True(t, ok)
	require.Equal(t, "SEP000000000001", s)
}

func TestTVSCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	body := tlv.NewBuilder().PutUint8(7, 1).PutUint32(9, 3600).Bytes()

	codec := tlv.TVSCodec{}

	frame, err := codec.EncodeFrame(2, 99, body)
	require.NoError(t, err)
	require.Equal(t, byte(87), frame[0], "TVS protocol id must be 87")
	require.Equal(t, byte(1), frame[1], "TVS version must be 1")
	require.Equal(t, byte(2), frame[2])
	require.Equal(t, byte(0), frame[3], "reserved byte must be 0")

	var buf bytes.Buffer

	require.NoError(t, tlv.WriteFrame(&buf, frame))

	command, sessionID, elements, err := codec.DecodeFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, byte(2), command)
	require.Equal(t, uint32(99), sessionID)

	status, ok := elements.Uint8(7)
	require.True(t, ok)
	require.Equal(t, byte(1), status)

	ttl, ok := elements.Uint32(9)
	require.True(t, ok)
	require.Equal(t, uint32(3600), ttl)
}

func TestCAPFCodec_BadProtocolID(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer([]byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})

	_, _, _, err := (tlv.CAPFCodec{}).DecodeFrame(buf)
	require.Error(t, err)
}

func TestTVSCodec_BadVersion(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer([]byte{87, 2, 0, 0, 0, 0, 0, 0, 0, 0})

	_, _, _, err := (tlv.TVSCodec{}).DecodeFrame(buf)
	require.Error(t, err)
}

func TestDecodeFrame_ShortHeader(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer([]byte{85, 1, 2})

	_, _, _, err := (tlv.CAPFCodec{}).DecodeFrame(buf)
	require.Error(t, err)
}

func TestDecodeFrame_EmptyBody(t *testing.T) {
	t.Parallel()

	codec := tlv.CAPFCodec{}

	frame, err := codec.EncodeFrame(1, 1, nil)
	require.NoError(t, err)

	var buf bytes.Buffer

	require.NoError(t, tlv.WriteFrame(&buf, frame))

	command, sessionID, elements, err := codec.DecodeFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, byte(1), command)
	require.Equal(t, uint32(1), sessionID)
	require.Empty(t, elements)
}

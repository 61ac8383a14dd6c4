package box

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkBox(typ string, payload ...[]byte) []byte {
	var body []byte
	for _, p := range payload {
		body = append(body, p...)
	}
	buf := make([]byte, HeaderSize, HeaderSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(HeaderSize+len(body)))
	copy(buf[4:], typ)
	return append(buf, body...)
}

func mkLargeBox(typ string, payload []byte) []byte {
	buf := make([]byte, LargeHeaderSize, LargeHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, 1)
	copy(buf[4:], typ)
	binary.BigEndian.PutUint64(buf[8:], uint64(LargeHeaderSize+len(payload)))
	return append(buf, payload...)
}

func mkRawHeader(size uint32, typ string) []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf, size)
	copy(buf[4:], typ)
	return buf
}

func TestReadHeader(t *testing.T) {
	t.Run("compact", func(t *testing.T) {
		buf := mkBox("free", []byte("abcd"))
		h, err := ReadHeader(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, "free", h.Type.String())
		assert.Equal(t, uint64(12), h.Size)
		assert.Equal(t, HeaderSize, h.HeaderSize)
		assert.False(t, h.Truncated)
	})

	t.Run("size zero runs to end", func(t *testing.T) {
		buf := append([]byte("padding!"), append(mkRawHeader(0, "mdat"), []byte("xyz")...)...)
		h, err := ReadHeader(buf, 8)
		require.NoError(t, err)
		assert.Equal(t, uint64(len(buf)-8), h.Size)
	})

	t.Run("extended size", func(t *testing.T) {
		buf := mkLargeBox("mdat", []byte("payload"))
		h, err := ReadHeader(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, LargeHeaderSize, h.HeaderSize)
		assert.Equal(t, uint64(len(buf)), h.Size)
	})

	t.Run("extended size missing", func(t *testing.T) {
		buf := append(mkRawHeader(1, "mdat"), 0, 0, 0)
		_, err := ReadHeader(buf, 0)
		assert.ErrorIs(t, err, ErrTruncatedHeader)
	})

	t.Run("short buffer", func(t *testing.T) {
		_, err := ReadHeader([]byte{0, 0, 0, 8, 'f'}, 0)
		assert.ErrorIs(t, err, ErrTruncatedHeader)
	})

	t.Run("size smaller than header", func(t *testing.T) {
		_, err := ReadHeader(mkRawHeader(7, "free"), 0)
		assert.ErrorIs(t, err, ErrMalformedBox)
	})

	t.Run("extended size smaller than header", func(t *testing.T) {
		buf := mkLargeBox("mdat", nil)
		binary.BigEndian.PutUint64(buf[8:], 12)
		_, err := ReadHeader(buf, 0)
		assert.ErrorIs(t, err, ErrMalformedBox)
	})
}

func TestReadHeaderBoundary(t *testing.T) {
	exact := mkBox("free", []byte("0123456789"))

	h, err := ReadHeader(exact, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(exact)), h.Size)

	over := append([]byte(nil), exact...)
	binary.BigEndian.PutUint32(over, uint32(len(over)+1))

	_, err = ReadHeader(over, 0)
	assert.ErrorIs(t, err, ErrMalformedBox)

	h, err = ReadHeaderPolicy(over, 0, OverrunClamp)
	require.NoError(t, err)
	assert.True(t, h.Truncated)
	assert.Equal(t, uint64(len(over)), h.Size)
}

func TestSummary(t *testing.T) {
	boxes := []Box{{Type: TypeFree}, {Type: TypeMoov}, {Type: TypeFree}}
	assert.Equal(t, map[string]int{"free": 2, "moov": 1}, Summary(boxes))
}

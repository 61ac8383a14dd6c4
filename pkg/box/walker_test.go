package box

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func types(boxes []Box) []string {
	out := make([]string, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, b.Type.String())
	}
	return out
}

func TestWalkShortBuffers(t *testing.T) {
	for n := 0; n < HeaderSize; n++ {
		boxes, _ := Walk(make([]byte, n), Options{})
		assert.Empty(t, boxes, "len %d", n)
	}
}

func TestWalkSingleBox(t *testing.T) {
	buf := mkBox("free", []byte("hello world"))
	boxes, errs := Walk(buf, Options{})
	require.Len(t, boxes, 1)
	assert.Empty(t, errs)
	assert.Equal(t, buf[HeaderSize:], boxes[0].Payload)
	assert.Equal(t, int64(0), boxes[0].Offset)
	assert.Equal(t, 0, boxes[0].Depth)
}

func TestWalkEmptyBox(t *testing.T) {
	buf := append(mkBox("ftyp", []byte("isom")), mkBox("free")...)
	boxes, errs := Walk(buf, Options{})
	assert.Empty(t, errs)
	assert.Equal(t, []string{"ftyp", "free"}, types(boxes))
	assert.Empty(t, boxes[1].Payload)
}

func TestWalkSizeZero(t *testing.T) {
	head := mkBox("ftyp", []byte("isom"))
	tail := append(mkRawHeader(0, "mdat"), []byte("rest of the file")...)
	buf := append(head, tail...)

	boxes, errs := Walk(buf, Options{})
	assert.Empty(t, errs)
	require.Len(t, boxes, 2)
	mdat := boxes[1]
	assert.Equal(t, uint64(len(buf)-len(head)), mdat.Size)
	assert.Equal(t, int64(len(head)), mdat.Offset)
	assert.Equal(t, []byte("rest of the file"), mdat.Payload)
}

func TestWalkExtendedSizeRoundTrip(t *testing.T) {
	payload := []byte("flag{large-size-box}\x00\x01\x02")
	buf := append(mkLargeBox("mdat", payload), mkBox("free", []byte("x"))...)

	boxes, errs := Walk(buf, Options{})
	assert.Empty(t, errs)
	require.Len(t, boxes, 2)
	assert.True(t, boxes[0].Extended())
	assert.Equal(t, payload, boxes[0].Payload)
	assert.Equal(t, uint64(len(payload)), boxes[0].DataSize())
	assert.Equal(t, "free", boxes[1].Type.String())
}

func TestWalkNested(t *testing.T) {
	stbl := mkBox("stbl", mkBox("stsd", []byte("desc")), mkBox("stsz", []byte("sizes")))
	trak := mkBox("trak", mkBox("tkhd", []byte("hdr")), mkBox("mdia", mkBox("minf", stbl)))
	moov := mkBox("moov", mkBox("mvhd", []byte("mv")), trak)
	buf := append(mkBox("ftyp", []byte("isom")), moov...)
	buf = append(buf, mkBox("mdat", []byte("data"))...)

	boxes, errs := Walk(buf, Options{})
	assert.Empty(t, errs)
	assert.Equal(t, []string{
		"ftyp", "moov", "mvhd", "trak", "tkhd", "mdia", "minf", "stbl", "stsd", "stsz", "mdat",
	}, types(boxes))

	depths := make([]int, 0, len(boxes))
	for _, b := range boxes {
		depths = append(depths, b.Depth)
	}
	assert.Equal(t, []int{0, 0, 1, 1, 2, 2, 3, 4, 5, 5, 0}, depths)

	var containers []string
	for _, b := range boxes {
		if b.Container {
			containers = append(containers, b.Type.String())
		}
	}
	assert.Equal(t, []string{"moov", "trak", "mdia", "minf", "stbl"}, containers)

	// mvhd is the first child of moov: local offset 0, file offset after the two headers.
	mvhd := boxes[2]
	assert.Equal(t, int64(0), mvhd.Offset)
	assert.Equal(t, int64(12+HeaderSize), mvhd.FileOffset)
	assert.Equal(t, buf[mvhd.FileOffset:mvhd.FileOffset+int64(mvhd.Size)], mkBox("mvhd", []byte("mv")))
}

func TestWalkMetaFullBox(t *testing.T) {
	ilst := mkBox("ilst", mkBox("\xa9nam", mkBox("data", []byte("flag{in-meta}"))))
	iso := mkBox("meta", []byte{0, 0, 0, 0}, mkBox("hdlr", []byte("mdir")), ilst)
	qt := mkBox("meta", mkBox("hdlr", []byte("mdta")))

	boxes, errs := Walk(mkBox("udta", iso, qt), Options{})
	assert.Empty(t, errs)
	assert.Equal(t, []string{"udta", "meta", "hdlr", "ilst", "\xa9nam", "meta", "hdlr"}, types(boxes))
}

func TestWalkStopsOnlyTheBrokenLevel(t *testing.T) {
	broken := append(mkBox("mvhd", []byte("ok")), mkRawHeader(3, "bad!")...)
	buf := append(mkBox("moov", broken), mkBox("free", []byte("after"))...)

	boxes, errs := Walk(buf, Options{})
	assert.Equal(t, []string{"moov", "mvhd", "free"}, types(boxes))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrMalformedBox)
	assert.Equal(t, 1, errs[0].Depth)
	assert.Equal(t, "moov", errs[0].Parent.String())
	assert.Equal(t, int64(HeaderSize+10), errs[0].FileOffset)
}

func TestWalkNoResync(t *testing.T) {
	// A zero-size-smaller-than-header box followed by a valid one: the valid box is not found.
	buf := append(mkRawHeader(4, "junk"), mkBox("free", []byte("hidden"))...)
	boxes, errs := Walk(buf, Options{})
	assert.Empty(t, boxes)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrMalformedBox)
}

func TestWalkTrailingBytes(t *testing.T) {
	buf := append(mkBox("free", []byte("a")), 1, 2, 3)
	boxes, errs := Walk(buf, Options{})
	assert.Len(t, boxes, 1)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrTruncatedHeader)
}

func TestWalkOverrunPolicy(t *testing.T) {
	buf := append(mkBox("ftyp", []byte("isom")), mkBox("mdat", []byte("0123456789"))...)
	binary.BigEndian.PutUint32(buf[12:], uint32(HeaderSize+11))

	boxes, errs := Walk(buf, Options{})
	assert.Equal(t, []string{"ftyp"}, types(boxes))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrMalformedBox)

	boxes, errs = Walk(buf, Options{Overrun: OverrunClamp})
	assert.Empty(t, errs)
	require.Len(t, boxes, 2)
	assert.True(t, boxes[1].Truncated)
	assert.Equal(t, []byte("0123456789"), boxes[1].Payload)
}

func TestWalkCustomContainers(t *testing.T) {
	buf := mkBox("moov", mkBox("mvhd", []byte("x")))
	boxes, _ := Walk(buf, Options{Containers: []BoxType{}})
	assert.Equal(t, []string{"moov"}, types(boxes))
}

func TestWalkMaxDepth(t *testing.T) {
	buf := mkBox("moov", mkBox("trak", mkBox("mdia", mkBox("mdhd", []byte("x")))))
	boxes, _ := Walk(buf, Options{MaxDepth: 1})
	assert.Equal(t, []string{"moov", "trak"}, types(boxes))
	assert.True(t, boxes[0].Container)
	assert.False(t, boxes[1].Container, "trak sits at the depth limit and is not descended into")
}

func TestWalkIdempotent(t *testing.T) {
	buf := append(mkBox("moov", mkBox("trak", mkBox("tkhd", []byte("t")))), mkRawHeader(2, "oops")...)

	first, firstErrs := Walk(buf, Options{})
	second, secondErrs := Walk(buf, Options{})
	assert.Equal(t, first, second)
	assert.Equal(t, firstErrs, secondErrs)

	w := NewWalker(buf, Options{})
	var again []Box
	for w.Next() {
	}
	w.Reset()
	for w.Next() {
		again = append(again, w.Box())
	}
	assert.Equal(t, first, again)

	var seq []Box
	for b := range Boxes(buf, Options{}) {
		seq = append(seq, b)
	}
	assert.Equal(t, first, seq)
}

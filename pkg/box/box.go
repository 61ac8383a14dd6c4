// Package box walks the length-prefixed, type-tagged boxes (atoms) of ISO base media files.
//
// A box header is a big-endian 32-bit size followed by a 4-byte type. A size of 0 means the box
// runs to the end of the buffer, a size of 1 means a 64-bit size follows the type. The walker
// works on an in-memory buffer and never performs file I/O.
package box

const (
	// HeaderSize is the length of a compact box header
	HeaderSize = 8
	// LargeHeaderSize is the length of a header carrying a 64-bit size
	LargeHeaderSize = 16
)

// BoxType is a 4-byte box type identifier.
type BoxType [4]byte

func (t BoxType) String() string {
	return string(t[:])
}

// NewBoxType creates a BoxType from a 4-character string.
func NewBoxType(s string) BoxType {
	var t BoxType
	copy(t[:], s)
	return t
}

// Known box types.
var (
	TypeFtyp = NewBoxType("ftyp")
	TypeMoov = NewBoxType("moov")
	TypeTrak = NewBoxType("trak")
	TypeEdts = NewBoxType("edts")
	TypeMdia = NewBoxType("mdia")
	TypeMinf = NewBoxType("minf")
	TypeDinf = NewBoxType("dinf")
	TypeStbl = NewBoxType("stbl")
	TypeUdta = NewBoxType("udta")
	TypeMeta = NewBoxType("meta")
	TypeIlst = NewBoxType("ilst")
	TypeMvex = NewBoxType("mvex")
	TypeMoof = NewBoxType("moof")
	TypeTraf = NewBoxType("traf")
	TypeMdat = NewBoxType("mdat")
	TypeFree = NewBoxType("free")
	TypeSkip = NewBoxType("skip")
	TypeUUID = NewBoxType("uuid")
)

// DefaultContainers are the box types whose payload is walked as a nested box sequence.
var DefaultContainers = []BoxType{
	TypeMoov, TypeTrak, TypeMdia, TypeMinf, TypeStbl, TypeUdta, TypeMeta,
	TypeEdts, TypeDinf, TypeMvex, TypeMoof, TypeTraf, TypeIlst,
}

// Box is one box found in a buffer. Payload aliases the walked buffer and must not be modified.
type Box struct {
	Type BoxType
	// Offset is the position of the header within the buffer walked at this depth.
	Offset int64
	// FileOffset is the position of the header within the root buffer.
	FileOffset int64
	// Size is the total box length including the header.
	Size       uint64
	HeaderSize int
	Depth      int
	// Truncated is set when the declared size overran the buffer and was clamped.
	Truncated bool
	// Container is set when the payload was walked as child boxes.
	Container bool
	Payload   []byte
}

// DataSize returns the size of the box payload (excluding the header)
func (b Box) DataSize() uint64 {
	return b.Size - uint64(b.HeaderSize)
}

// Extended reports whether the box used the 64-bit size form
func (b Box) Extended() bool {
	return b.HeaderSize == LargeHeaderSize
}

// Summary counts boxes by type.
func Summary(boxes []Box) map[string]int {
	counts := make(map[string]int)
	for _, b := range boxes {
		counts[b.Type.String()]++
	}
	return counts
}

package transform

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"slices"
)

// regexp caps counted repetition at 1000
const maxRunLength = 1000

type runDecoder struct {
	name   string
	re     *regexp.Regexp
	max    int
	decode func(run []byte) ([]byte, error)
}

func newRunDecoder(name, class string, p Params, defMin int, decode func([]byte) ([]byte, error)) (Transform, error) {
	minLen, err := p.Int("minLength", defMin)
	if err != nil {
		return nil, err
	}
	if minLen < 2 || minLen > maxRunLength {
		return nil, fmt.Errorf("minLength %d out of range [2, %d]", minLen, maxRunLength)
	}
	maxMatches, err := p.Int("maxMatches", 50)
	if err != nil {
		return nil, err
	}
	if maxMatches <= 0 {
		maxMatches = -1
	}
	return &runDecoder{
		name:   name,
		re:     regexp.MustCompile(fmt.Sprintf(class, minLen)),
		max:    maxMatches,
		decode: decode,
	}, nil
}

func (d *runDecoder) Name() string {
	return d.name
}

func (d *runDecoder) Apply(data []byte) iter.Seq[Output] {
	return func(yield func(Output) bool) {
		for _, loc := range d.re.FindAllIndex(data, d.max) {
			decoded, err := d.decode(data[loc[0]:loc[1]])
			if err != nil {
				continue
			}
			if !yield(Output{Label: fmt.Sprintf("%s@%d", d.name, loc[0]), Data: decoded}) {
				return
			}
		}
	}
}

func newBase64(p Params) (Transform, error) {
	return newRunDecoder("base64", `[A-Za-z0-9+/]{%d,}={0,2}`, p, 30, decodeBase64)
}

// decodeBase64 accepts padded runs and falls back to unpadded decoding of a cut run.
func decodeBase64(run []byte) ([]byte, error) {
	if out, err := base64.StdEncoding.DecodeString(string(run)); err == nil {
		return out, nil
	}
	trimmed := run
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == '=' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if len(trimmed)%4 == 1 {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return base64.RawStdEncoding.DecodeString(string(trimmed))
}

func newHex(p Params) (Transform, error) {
	return newRunDecoder("hex", `[0-9a-fA-F]{%d,}`, p, 40, decodeHex)
}

func decodeHex(run []byte) ([]byte, error) {
	if len(run)%2 == 1 {
		run = run[:len(run)-1]
	}
	out := make([]byte, hex.DecodedLen(len(run)))
	n, err := hex.Decode(out, run)
	return out[:n], err
}

type xorTransform struct {
	keys   []string
	single bool
	limit  int
}

func newXOR(p Params) (Transform, error) {
	keys, err := p.Strings("keys", nil)
	if err != nil {
		return nil, err
	}
	single, err := p.Bool("single", false)
	if err != nil {
		return nil, err
	}
	limit, err := p.Int("limit", 10000)
	if err != nil {
		return nil, err
	}
	keys = slices.DeleteFunc(keys, func(k string) bool { return k == "" })
	if len(keys) == 0 && !single {
		return nil, errors.New("xor needs keys or single: true")
	}
	return &xorTransform{keys: keys, single: single, limit: limit}, nil
}

func (x *xorTransform) Name() string {
	return "xor"
}

func (x *xorTransform) Apply(data []byte) iter.Seq[Output] {
	data = clip(data, x.limit)
	return func(yield func(Output) bool) {
		if len(data) == 0 {
			return
		}
		buf := make([]byte, len(data))
		for _, key := range x.keys {
			xorInto(buf, data, []byte(key))
			if !yield(Output{Label: "xor:" + key, Data: buf}) {
				return
			}
		}
		if !x.single {
			return
		}
		for k := 1; k < 256; k++ {
			xorInto(buf, data, []byte{byte(k)})
			if !yield(Output{Label: fmt.Sprintf("xor:0x%02x", k), Data: buf}) {
				return
			}
		}
	}
}

// XOR returns data combined with a repeating key.
func XOR(data, key []byte) []byte {
	out := make([]byte, len(data))
	xorInto(out, data, key)
	return out
}

func xorInto(dst, data, key []byte) {
	for i, b := range data {
		dst[i] = b ^ key[i%len(key)]
	}
}

// clip cuts data to limit bytes, limit <= 0 means no cut.
func clip(data []byte, limit int) []byte {
	if limit > 0 && len(data) > limit {
		return data[:limit]
	}
	return data
}

type caesarTransform struct {
	shifts []int
	limit  int
}

func newCaesar(p Params) (Transform, error) {
	all := make([]int, 0, 25)
	for s := 1; s < 26; s++ {
		all = append(all, s)
	}
	shifts, err := p.Ints("shifts", all)
	if err != nil {
		return nil, err
	}
	limit, err := p.Int("limit", 0)
	if err != nil {
		return nil, err
	}
	return &caesarTransform{shifts: shifts, limit: limit}, nil
}

func (c *caesarTransform) Name() string {
	return "caesar"
}

func (c *caesarTransform) Apply(data []byte) iter.Seq[Output] {
	data = clip(data, c.limit)
	return func(yield func(Output) bool) {
		if len(data) == 0 {
			return
		}
		buf := make([]byte, len(data))
		for _, s := range c.shifts {
			caesarInto(buf, data, s)
			if !yield(Output{Label: fmt.Sprintf("caesar:%d", s), Data: buf}) {
				return
			}
		}
	}
}

// Caesar rotates ASCII letters by shift, leaving every other byte alone.
func Caesar(data []byte, shift int) []byte {
	out := make([]byte, len(data))
	caesarInto(out, data, shift)
	return out
}

func caesarInto(out, data []byte, shift int) {
	shift = ((shift % 26) + 26) % 26
	for i, b := range data {
		switch {
		case b >= 'a' && b <= 'z':
			out[i] = 'a' + (b-'a'+byte(shift))%26
		case b >= 'A' && b <= 'Z':
			out[i] = 'A' + (b-'A'+byte(shift))%26
		default:
			out[i] = b
		}
	}
}

// reverseTransform reverses the first limit bytes, the tail of a large payload is left to the raw scan
type reverseTransform struct {
	limit int
}

func newReverse(p Params) (Transform, error) {
	limit, err := p.Int("limit", 0)
	if err != nil {
		return nil, err
	}
	return reverseTransform{limit: limit}, nil
}

func (reverseTransform) Name() string {
	return "reverse"
}

func (r reverseTransform) Apply(data []byte) iter.Seq[Output] {
	data = clip(data, r.limit)
	return func(yield func(Output) bool) {
		if len(data) == 0 {
			return
		}
		out := slices.Clone(data)
		slices.Reverse(out)
		yield(Output{Label: "reverse", Data: out})
	}
}

// lsbTransform packs one bit plane of the input. With a stride above 1 only every stride-th byte
// starting at offset is read, which selects the low byte of each little-endian PCM sample.
type lsbTransform struct {
	bits   []int
	limit  int
	stride int
	offset int
}

func newLSB(p Params) (Transform, error) {
	bits, err := p.Ints("bits", []int{0})
	if err != nil {
		return nil, err
	}
	for _, b := range bits {
		if b < 0 || b > 7 {
			return nil, fmt.Errorf("bit plane %d out of range [0, 7]", b)
		}
	}
	limit, err := p.Int("limit", 0)
	if err != nil {
		return nil, err
	}
	stride, err := p.Int("stride", 1)
	if err != nil {
		return nil, err
	}
	if stride < 1 {
		return nil, fmt.Errorf("stride %d must be at least 1", stride)
	}
	offset, err := p.Int("offset", 0)
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset >= stride {
		return nil, fmt.Errorf("offset %d out of range [0, %d)", offset, stride)
	}
	return &lsbTransform{bits: bits, limit: limit, stride: stride, offset: offset}, nil
}

func (l *lsbTransform) Name() string {
	return "lsb"
}

func (l *lsbTransform) Apply(data []byte) iter.Seq[Output] {
	data = clip(data, l.limit)
	suffix := ""
	if l.stride > 1 {
		suffix = fmt.Sprintf("/stride%d+%d", l.stride, l.offset)
	}
	return func(yield func(Output) bool) {
		for _, bit := range l.bits {
			for _, msbFirst := range []bool{true, false} {
				order := "lsb-first"
				if msbFirst {
					order = "msb-first"
				}
				out := PackSampleBits(data, l.stride, l.offset, bit, msbFirst)
				if !yield(Output{Label: fmt.Sprintf("lsb:bit%d:%s%s", bit, order, suffix), Data: out}) {
					return
				}
			}
		}
	}
}

// PackBits collects bit plane `bit` of every input byte into bytes, eight inputs per output
// byte. A trailing partial byte is dropped.
func PackBits(data []byte, bit int, msbFirst bool) []byte {
	return PackSampleBits(data, 1, 0, bit, msbFirst)
}

// PackSampleBits is PackBits over the bytes at offset, offset+stride, offset+2*stride...
func PackSampleBits(data []byte, stride, offset, bit int, msbFirst bool) []byte {
	if stride < 1 {
		stride = 1
	}
	offset = max(offset, 0)
	n := 0
	if offset < len(data) {
		n = (len(data) - offset + stride - 1) / stride
	}
	out := make([]byte, 0, n/8)
	var current byte
	for i := 0; i < n; i++ {
		b := data[offset+i*stride]
		v := (b >> uint(bit)) & 1
		idx := i % 8
		if msbFirst {
			current |= v << uint(7-idx)
		} else {
			current |= v << uint(idx)
		}
		if idx == 7 {
			out = append(out, current)
			current = 0
		}
	}
	return out
}

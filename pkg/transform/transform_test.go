package transform

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func find(outputs []Output, label string) (Output, bool) {
	for _, o := range outputs {
		if o.Label == label {
			return o, true
		}
	}
	return Output{}, false
}

func build(t *testing.T, spec Spec) Transform {
	t.Helper()
	tr, err := DefaultRegistry().Build(spec)
	require.NoError(t, err)
	return tr
}

func apply(t *testing.T, spec Spec, data []byte) []Output {
	t.Helper()
	return Collect(build(t, spec).Apply(data))
}

func TestBase64(t *testing.T) {
	secret := "flag{base64_hidden_in_free_box}"
	enc := base64.StdEncoding.EncodeToString([]byte(secret))
	data := []byte("\x00\x01" + enc + "\x00")

	out := apply(t, Spec{Name: "base64"}, data)
	got, ok := find(out, "base64@2")
	require.True(t, ok, "outputs: %v", out)
	assert.Equal(t, secret, string(got.Data))
}

func TestBase64Unpadded(t *testing.T) {
	secret := "flag{no padding at all here!!}x"
	enc := strings.TrimRight(base64.StdEncoding.EncodeToString([]byte(secret)), "=")
	out := apply(t, Spec{Name: "base64"}, []byte(enc))
	require.Len(t, out, 1)
	assert.Equal(t, secret, string(out[0].Data))
}

func TestBase64ShortRunIgnored(t *testing.T) {
	out := apply(t, Spec{Name: "base64"}, []byte("ZmxhZ3t9"))
	assert.Empty(t, out)
}

func TestHex(t *testing.T) {
	secret := "flag{hex_encoded_value}"
	data := []byte(".." + hex.EncodeToString([]byte(secret)) + "..")
	out := apply(t, Spec{Name: "hex", Params: Params{"minLength": 20}}, data)
	require.Len(t, out, 1)
	assert.Equal(t, "hex@2", out[0].Label)
	assert.Equal(t, secret, string(out[0].Data))
}

func TestXOR(t *testing.T) {
	plain := []byte("flag{xored}")
	tr := build(t, Spec{Name: "xor", Params: Params{"keys": []any{"key"}, "single": true}})

	out := Collect(tr.Apply(XOR(plain, []byte("key"))))
	got, ok := find(out, "xor:key")
	require.True(t, ok)
	assert.Equal(t, plain, got.Data)

	out = Collect(tr.Apply(XOR(plain, []byte{0x20})))
	got, ok = find(out, "xor:0x20")
	require.True(t, ok)
	assert.Equal(t, plain, got.Data)
	assert.Len(t, out, 1+255)
}

func TestXORLimit(t *testing.T) {
	tr := build(t, Spec{Name: "xor", Params: Params{"keys": []string{"k"}, "limit": 4}})
	out := Collect(tr.Apply([]byte("0123456789")))
	require.Len(t, out, 1)
	assert.Len(t, out[0].Data, 4)
}

func TestXORNeedsKeys(t *testing.T) {
	_, err := DefaultRegistry().Build(Spec{Name: "xor"})
	assert.Error(t, err)
}

func TestCaesar(t *testing.T) {
	assert.Equal(t, []byte("synt{Nop-123}"), Caesar([]byte("flag{Abc-123}"), 13))
	assert.Equal(t, []byte("flag{Abc-123}"), Caesar([]byte("synt{Nop-123}"), -13))

	out := apply(t, Spec{Name: "caesar"}, []byte("synt{ebg}"))
	assert.Len(t, out, 25)
	got, ok := find(out, "caesar:13")
	require.True(t, ok)
	assert.Equal(t, "flag{rot}", string(got.Data))
}

func TestReverse(t *testing.T) {
	in := []byte("}desrever{galf")
	out := apply(t, Spec{Name: "reverse"}, in)
	require.Len(t, out, 1)
	assert.Equal(t, "flag{reversed}", string(out[0].Data))
	assert.Equal(t, "}desrever{galf", string(in))
}

func TestPackBits(t *testing.T) {
	// 'A' = 0x41 = 01000001
	carrier := []byte{0, 1, 0, 0, 0, 0, 0, 1, 0xfe}
	assert.Equal(t, []byte{'A'}, PackBits(carrier, 0, true))
	assert.Equal(t, []byte{0x82}, PackBits(carrier, 0, false))

	shifted := make([]byte, 8)
	for i, b := range carrier[:8] {
		shifted[i] = b << 2
	}
	assert.Equal(t, []byte{'A'}, PackBits(shifted, 2, true))
}

func TestLSB(t *testing.T) {
	secret := []byte("flag{lsb}")
	var carrier []byte
	for _, c := range secret {
		for i := 7; i >= 0; i-- {
			carrier = append(carrier, 0xa0|((c>>uint(i))&1))
		}
	}
	out := apply(t, Spec{Name: "lsb"}, carrier)
	got, ok := find(out, "lsb:bit0:msb-first")
	require.True(t, ok)
	assert.Equal(t, secret, got.Data)

	_, err := DefaultRegistry().Build(Spec{Name: "lsb", Params: Params{"bits": []int{8}}})
	assert.Error(t, err)
}

func TestUnknownTransform(t *testing.T) {
	_, err := NewPipeline(DefaultRegistry(), []Spec{{Name: "base64"}, {Name: "rot47"}})
	assert.ErrorIs(t, err, ErrUnknownTransform)
}

func TestPipeline(t *testing.T) {
	p, err := NewPipeline(DefaultRegistry(), []Spec{{Name: "reverse"}, {Name: "caesar", Params: Params{"shifts": []int{13}}}})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())

	out := Collect(p.Run([]byte("abc")))
	require.Len(t, out, 2)
	assert.Equal(t, "cba", string(out[0].Data))
	assert.Equal(t, "nop", string(out[1].Data))

	assert.Empty(t, Collect(p.Run(nil)))
}

func TestDefaultSpecsBuild(t *testing.T) {
	p, err := NewPipeline(DefaultRegistry(), DefaultSpecs())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultSpecs()), p.Len())
	assert.Equal(t, []string{"base64", "caesar", "hex", "lsb", "reverse", "xor"}, DefaultRegistry().Names())
}

func TestSpecsFromYAML(t *testing.T) {
	doc := `
- name: xor
  params:
    keys: [secret]
    limit: 64
- name: lsb
  params:
    bits: [0, 1]
- name: hex
  params:
    minLength: 16.0
`
	var specs []Spec
	require.NoError(t, yaml.Unmarshal([]byte(doc), &specs))
	p, err := NewPipeline(DefaultRegistry(), specs)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())

	bad := []Spec{{Name: "xor", Params: Params{"keys": "secret"}}}
	_, err = NewPipeline(DefaultRegistry(), bad)
	assert.Error(t, err)
}

func TestCaesarAndReverseLimit(t *testing.T) {
	data := []byte("synt{ebg}-tail-that-is-cut")
	out := apply(t, Spec{Name: "caesar", Params: Params{"shifts": []int{13}, "limit": 9}}, data)
	require.Len(t, out, 1)
	assert.Equal(t, "flag{rot}", string(out[0].Data))

	out = apply(t, Spec{Name: "reverse", Params: Params{"limit": 4}}, []byte("}olleh"))
	require.Len(t, out, 1)
	assert.Equal(t, "llo}", string(out[0].Data))
}

func TestLSBStride(t *testing.T) {
	// 16-bit little-endian samples: the low bit of each sample lives in its first byte.
	secret := []byte("flag{pcm}")
	var samples []byte
	for _, c := range secret {
		for i := 0; i < 8; i++ {
			samples = append(samples, 0x10|((c>>uint(i))&1), 0xff)
		}
	}
	out := apply(t, Spec{Name: "lsb", Params: Params{"stride": 2}}, samples)
	got, ok := find(out, "lsb:bit0:lsb-first/stride2+0")
	require.True(t, ok, "outputs: %v", out)
	assert.Equal(t, secret, got.Data)

	_, err := DefaultRegistry().Build(Spec{Name: "lsb", Params: Params{"stride": 2, "offset": 2}})
	assert.Error(t, err)
	_, err = DefaultRegistry().Build(Spec{Name: "lsb", Params: Params{"stride": 0}})
	assert.Error(t, err)
}

func TestPackSampleBits(t *testing.T) {
	carrier := []byte{0, 9, 1, 9, 0, 9, 0, 9, 0, 9, 0, 9, 0, 9, 1, 9}
	assert.Equal(t, []byte{'A'}, PackSampleBits(carrier, 2, 0, 0, true))
	assert.Equal(t, []byte{0xff}, PackSampleBits(carrier, 2, 1, 0, true))
	assert.Empty(t, PackSampleBits(carrier, 2, 20, 0, true))
}

func TestRunStopsEarly(t *testing.T) {
	p, err := NewPipeline(DefaultRegistry(), []Spec{{Name: "caesar"}, {Name: "reverse"}})
	require.NoError(t, err)

	var labels []string
	for out := range p.Run([]byte("abc")) {
		labels = append(labels, out.Label)
		if len(labels) == 3 {
			break
		}
	}
	assert.Equal(t, []string{"caesar:1", "caesar:2", "caesar:3"}, labels)
}

func TestRunReusesBuffers(t *testing.T) {
	p, err := NewPipeline(DefaultRegistry(), []Spec{{Name: "xor", Params: Params{"keys": []string{"a", "b"}}}})
	require.NoError(t, err)

	var seen [][]byte
	for out := range p.Run([]byte("xyz")) {
		seen = append(seen, out.Data)
	}
	require.Len(t, seen, 2)
	assert.Same(t, &seen[0][0], &seen[1][0], "outputs of one transform share a buffer")
}

func TestDefaultPipelineBoundsMemory(t *testing.T) {
	p, err := NewPipeline(DefaultRegistry(), DefaultSpecs())
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{0, 0x80, 0x7f, 0xc3}, 4<<20)
	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	outputs, largest := 0, 0
	for out := range p.Run(payload) {
		outputs++
		largest = max(largest, len(out.Data))
	}

	runtime.ReadMemStats(&after)
	allocated := after.TotalAlloc - before.TotalAlloc
	assert.Greater(t, outputs, 256)
	assert.LessOrEqual(t, largest, 1<<20)
	assert.Less(t, allocated, uint64(32<<20), "16 MiB payload allocated %d bytes", allocated)
}

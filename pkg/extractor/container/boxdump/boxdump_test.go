package boxdump

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlagSift/pkg/box"
	"FlagSift/pkg/box/boxtest"
	"FlagSift/pkg/extractor"
)

func sample() []byte {
	return boxtest.Concat(
		boxtest.Box("ftyp", []byte("isom\x00\x00\x02\x00")),
		boxtest.Box("free", []byte("ZmxhZ3toaWRkZW5faW5fZnJlZX0=")),
		boxtest.Box("skip"),
		boxtest.Box("mdat", []byte{0x00, 0x01, 0x02}),
		boxtest.Box("uuid", []byte{0xde, 0xad, 0xbe, 0xef}),
	)
}

func TestExtractFromBuffer(t *testing.T) {
	e := New(box.Options{}, nil, 0)
	results, err := e.ExtractFromBuffer(context.Background(), sample(), extractor.ExtractionOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	free := results[0]
	assert.Equal(t, "box-free", free.Algorithm)
	assert.Equal(t, "text", free.DataType)
	assert.Equal(t, []byte("ZmxhZ3toaWRkZW5faW5fZnJlZX0="), free.ExtractedData)
	assert.Equal(t, int64(16), free.Details["file_offset"])
	assert.Equal(t, 1.0, free.Score)

	uuid := results[1]
	assert.Equal(t, "box-uuid", uuid.Algorithm)
	assert.Equal(t, "binary", uuid.DataType)
	assert.Equal(t, 0.0, uuid.Score)
}

func TestExtractCustomTypesAndCap(t *testing.T) {
	e := New(box.Options{}, []string{"mdat"}, 0)
	assert.Equal(t, []string{"box-mdat"}, e.SupportedAlgorithms())
	results, err := e.ExtractFromBuffer(context.Background(), sample(), extractor.ExtractionOptions{MaxBytes: 2})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []byte{0x00, 0x01}, results[0].ExtractedData)
}

func TestExtractSavesPayloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nature.mp4")
	require.NoError(t, os.WriteFile(path, sample(), 0644))

	e := New(box.Options{}, nil, 0)
	assert.True(t, e.CanExtract("mp4"))
	results, err := e.Extract(context.Background(), path, extractor.ExtractionOptions{OutputDir: dir, Save: true})
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Len(t, results[0].OutputFiles, 1)
	assert.Equal(t, filepath.Join(dir, "nature_free_16.bin"), results[0].OutputFiles[0])
	saved, err := os.ReadFile(results[0].OutputFiles[0])
	require.NoError(t, err)
	assert.Equal(t, results[0].ExtractedData, saved)
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(box.Options{}, nil, 0).ExtractFromBuffer(ctx, sample(), extractor.ExtractionOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

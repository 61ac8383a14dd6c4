package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlagSift/pkg/models"
)

type stubExtractor struct {
	BaseExtractor
}

func newStub(name string, formats ...string) *stubExtractor {
	return &stubExtractor{BaseExtractor: NewBaseExtractor(name, formats, []string{name})}
}

func (s *stubExtractor) Extract(context.Context, string, ExtractionOptions) ([]*models.ExtractionResult, error) {
	return nil, nil
}

func names(extractors []DataExtractor) []string {
	out := make([]string, 0, len(extractors))
	for _, e := range extractors {
		out = append(out, e.Name())
	}
	return out
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(newStub("lsb", "png", "bmp"))
	r.Register(newStub("boxes", "mp4"))
	r.Register(newStub("carver", AnyFormat))

	assert.Equal(t, []string{"lsb", "carver"}, names(r.GetExtractorsForFormat("png")))
	assert.Equal(t, []string{"boxes", "carver"}, names(r.GetExtractorsForFormat("mp4")))
	assert.Equal(t, []string{"carver"}, names(r.GetExtractorsForFormat("mp3")))
	assert.Equal(t, []string{"carver"}, names(r.Universal()))
	assert.Equal(t, []string{"bmp", "mp4", "png"}, r.GetSupportedFormats())

	require.NotNil(t, r.GetExtractorByName("carver", "wav"))
	assert.Nil(t, r.GetExtractorByName("lsb", "mp4"))
}

func TestRegistryResultIsACopy(t *testing.T) {
	r := NewRegistry()
	r.Register(newStub("lsb", "png"))
	r.Register(newStub("carver", AnyFormat))

	got := r.GetExtractorsForFormat("png")
	got[0] = nil
	assert.Equal(t, []string{"lsb", "carver"}, names(r.GetExtractorsForFormat("png")))
}

func TestCanExtract(t *testing.T) {
	assert.True(t, newStub("lsb", "png").CanExtract("png"))
	assert.False(t, newStub("lsb", "png").CanExtract("mp4"))
	assert.True(t, newStub("carver", AnyFormat).CanExtract("mp4"))
}

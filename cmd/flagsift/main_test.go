package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlagSift/pkg/analyzer"
	"FlagSift/pkg/analyzer/raw"
	"FlagSift/pkg/box"
	"FlagSift/pkg/box/boxtest"
	"FlagSift/pkg/config"
	"FlagSift/pkg/extractor"
	"FlagSift/pkg/logging"
	"FlagSift/pkg/report"
)

func init() {
	color.NoColor = true
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := loadConfig(arguments{
		LogLevel:  "debug",
		Clamp:     true,
		Markers:   []string{"HTB"},
		MinLength: 6,
	})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, box.OverrunClamp, cfg.BoxOptions().Overrun)
	assert.Equal(t, []string{"HTB"}, cfg.Scanner.Markers)
	assert.Equal(t, 6, cfg.Scanner.MinStringLength)

	_, err = loadConfig(arguments{Config: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func newSession(t *testing.T, out *bytes.Buffer) *session {
	t.Helper()
	cfg := config.Default()
	registry := analyzer.NewRegistry()
	registerAnalyzers(registry)
	extractors := extractor.NewRegistry()
	registerExtractors(extractors, cfg)

	opts, err := analyzer.NewOptions(cfg, nil)
	require.NoError(t, err)
	opts.Extractors = extractors
	return &session{
		registry: registry,
		fallback: raw.NewRawAnalyzer(),
		opts:     opts,
		format:   "auto",
		out:      report.NewPrinter(out, false),
		log:      logging.Discard(),
		show:     true,
	}
}

func TestAnalyzeFileMP4(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nature.mp4")
	data := boxtest.Concat(
		boxtest.Box("ftyp", []byte("isom\x00\x00\x02\x00")),
		boxtest.Box("free", []byte("..flag{in_the_free_box}..")),
	)
	require.NoError(t, os.WriteFile(path, data, 0644))

	var out bytes.Buffer
	s := newSession(t, &out)
	s.analyzeFile(context.Background(), path)

	require.Len(t, s.results, 1)
	assert.Equal(t, "mp4", s.results[0].FileType)
	assert.Contains(t, out.String(), "[!!!] flag{in_the_free_box} in free box at offset 16")
}

func TestAnalyzeFileFallsBackToRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(path, []byte("not really a png ctf{raw_fallback}"), 0644))

	var out bytes.Buffer
	s := newSession(t, &out)
	s.analyzeFile(context.Background(), path)

	require.Len(t, s.results, 1)
	assert.Equal(t, "Raw Analyzer", s.results[0].Analyzer)
	require.Len(t, s.results[0].Flags(), 1)
	assert.Equal(t, "ctf{raw_fallback}", s.results[0].Flags()[0].Text)
	assert.Contains(t, out.String(), "Analysis with Image LSB Analyzer failed")
}

func TestAnalyzeDirHoldsReports(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte("flag{a}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.bin"), []byte("nothing"), 0644))

	var out bytes.Buffer
	s := newSession(t, &out)
	s.analyzeDir(context.Background(), []string{filepath.Join(dir, "a.bin"), filepath.Join(dir, "b.bin")})

	assert.Len(t, s.results, 2)
	assert.True(t, s.show)
	assert.NotContains(t, out.String(), "--- Analysis Results ---")
}

func TestAnalyzeFileWAVSampleBits(t *testing.T) {
	le := binary.LittleEndian
	var samples []byte
	for _, c := range []byte("flag{mono_pcm}") {
		for i := 0; i < 8; i++ {
			samples = append(samples, 0x30|((c>>uint(i))&1), 0x01)
		}
	}
	wav := []byte("RIFF\x00\x00\x00\x00WAVEfmt \x10\x00\x00\x00")
	wav = le.AppendUint16(wav, 1)
	wav = le.AppendUint16(wav, 1)
	wav = le.AppendUint32(wav, 8000)
	wav = le.AppendUint32(wav, 16000)
	wav = le.AppendUint16(wav, 2)
	wav = le.AppendUint16(wav, 16)
	wav = append(wav, "data"...)
	wav = le.AppendUint32(wav, uint32(len(samples)))
	wav = append(wav, samples...)
	le.PutUint32(wav[4:], uint32(len(wav)-8))

	path := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, os.WriteFile(path, wav, 0644))

	var out bytes.Buffer
	s := newSession(t, &out)
	s.analyzeFile(context.Background(), path)

	require.Len(t, s.results, 1)
	assert.Equal(t, "wav", s.results[0].FileType)
	assert.Contains(t, out.String(), "[!!!] flag{mono_pcm} in wav-lsb-all-lsbfirst box at offset 44 via wav-lsb-all-lsbfirst")
}

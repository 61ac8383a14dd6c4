package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"

	"FlagSift/pkg/analyzer"
	mp4analyzer "FlagSift/pkg/analyzer/container/mp4"
	"FlagSift/pkg/analyzer/image/raster"
	"FlagSift/pkg/analyzer/raw"
	"FlagSift/pkg/config"
	"FlagSift/pkg/extractor"
	"FlagSift/pkg/extractor/archive/zipcarve"
	"FlagSift/pkg/extractor/audio/wavlsb"
	"FlagSift/pkg/extractor/container/boxdump"
	lsbextractor "FlagSift/pkg/extractor/image/lsb"
	"FlagSift/pkg/filehandler"
	"FlagSift/pkg/logging"
	"FlagSift/pkg/models"
	"FlagSift/pkg/report"
)

const version = "1.0.0"

type arguments struct {
	File        string   `arg:"-f,--file" help:"path to a single file for analysis" placeholder:"FILE"`
	Dir         string   `arg:"-d,--dir" help:"directory of files for analysis" placeholder:"DIR"`
	Recursive   bool     `arg:"-r,--recursive" help:"descend into subdirectories of --dir"`
	Ext         []string `arg:"--ext,separate" help:"only analyze files with this extension when walking --dir recursively (repeatable)"`
	URL         string   `arg:"--url" help:"URL to download and analyze"`
	URLFile     string   `arg:"--urlfile" help:"file containing URLs to download and analyze, one per line" placeholder:"FILE"`
	OutDir      string   `arg:"-o,--outdir" help:"directory for downloads and extracted data" default:"flagsift_output"`
	Format      string   `arg:"--format" help:"force a format (mp4, png, jpeg, gif, bmp, tiff, bin) instead of detecting it" default:"auto"`
	Config      string   `arg:"-c,--config" help:"YAML config file" placeholder:"FILE"`
	JSON        bool     `arg:"--json" help:"print results as JSON on stdout"`
	Extract     bool     `arg:"-x,--extract" help:"save box payloads and LSB candidates under the output directory"`
	Verbose     bool     `arg:"-v,--verbose" help:"report every box, string and finding detail"`
	LogLevel    string   `arg:"--log-level" help:"log level (debug, info, warn, error)" placeholder:"LEVEL"`
	ListFormats bool     `arg:"--listformats" help:"list supported file formats and exit"`
	Clamp       bool     `arg:"--clamp" help:"keep boxes whose size overruns their parent, clamped to the bytes available"`
	Markers     []string `arg:"-m,--marker,separate" help:"flag prefix to search for, replaces the defaults (repeatable)"`
	MinLength   int      `arg:"--min-length" help:"shortest printable string reported"`
}

func (arguments) Version() string {
	return "FlagSift v" + version
}

func (arguments) Description() string {
	return "FlagSift walks MP4 boxes, image bit planes and raw bytes looking for CTF flags"
}

func main() {
	os.Exit(run())
}

func run() int {
	var args arguments
	p := arg.MustParse(&args)

	// Status lines go to stderr when stdout carries JSON
	var statusOut io.Writer = os.Stdout
	if args.JSON {
		statusOut = os.Stderr
	}
	out := report.NewPrinter(statusOut, args.Verbose)

	cfg, err := loadConfig(args)
	if err != nil {
		out.Error("Invalid configuration: %v", err)
		return 1
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, color.NoColor)

	if !args.JSON {
		fmt.Fprintln(statusOut, color.New(color.FgBlue, color.Bold).Sprint("FlagSift v"+version))
		fmt.Fprintln(statusOut, "MP4 box and payload scanner for CTF flags")
		fmt.Fprintln(statusOut, "---------------------------------")
	}

	registry := analyzer.NewRegistry()
	registerAnalyzers(registry)
	extractors := extractor.NewRegistry()
	registerExtractors(extractors, cfg)

	if args.ListFormats {
		fmt.Fprintln(statusOut, "Supported file formats:")
		for _, format := range registry.GetSupportedFormats() {
			analyzers := registry.GetAnalyzersForFormat(format)
			names := make([]string, 0, len(analyzers))
			for _, a := range analyzers {
				names = append(names, a.Name())
			}
			fmt.Fprintf(statusOut, "- %s: %s\n", format, strings.Join(names, ", "))
		}
		fmt.Fprintln(statusOut, "- anything else: raw scan")
		return 0
	}

	if args.File == "" && args.Dir == "" && args.URL == "" && args.URLFile == "" {
		p.WriteUsage(os.Stderr)
		return 1
	}

	opts, err := analyzer.NewOptions(cfg, logger)
	if err != nil {
		out.Error("Invalid transform list: %v", err)
		return 1
	}
	opts.Verbose = args.Verbose
	opts.Extract = args.Extract
	opts.Extractors = extractors
	if args.Extract {
		opts.OutputDir = filepath.Join(args.OutDir, "extracted")
	}

	if args.Extract || args.URL != "" || args.URLFile != "" {
		if err := os.MkdirAll(args.OutDir, 0755); err != nil {
			out.Error("Failed to create output directory: %v", err)
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := &session{
		registry: registry,
		fallback: raw.NewRawAnalyzer(),
		opts:     opts,
		format:   strings.ToLower(args.Format),
		out:      out,
		log:      logger,
		show:     !args.JSON,
	}

	downloadDir := filepath.Join(args.OutDir, "downloads")
	if args.URLFile != "" {
		out.Info("Processing URLs from file: %s", args.URLFile)
		urls, err := filehandler.ReadLines(args.URLFile)
		if err != nil {
			out.Error("Failed to read URL file: %v", err)
			return 1
		}
		for _, url := range urls {
			url = strings.TrimSpace(url)
			if url == "" || strings.HasPrefix(url, "#") {
				continue
			}
			s.analyzeURL(ctx, url, downloadDir)
		}
	}

	if args.URL != "" {
		s.analyzeURL(ctx, args.URL, downloadDir)
	}

	if args.File != "" {
		out.Info("Analyzing file: %s", args.File)
		s.analyzeFile(ctx, args.File)
	}

	if args.Dir != "" {
		out.Info("Analyzing directory: %s", args.Dir)
		var files []string
		if args.Recursive {
			files, err = filehandler.FilesInDirectory(args.Dir, args.Ext)
		} else {
			files, err = filehandler.GatherFiles(args.Dir)
		}
		if err != nil {
			out.Error("Failed to read directory: %v", err)
			return 1
		}
		out.Info("Found %d files to analyze", len(files))
		s.analyzeDir(ctx, files)
	}

	if args.JSON {
		if err := report.JSON(os.Stdout, s.results); err != nil {
			out.Error("%v", err)
			return 1
		}
	} else if len(s.results) > 1 || args.Dir != "" {
		out.Summary(s.results)
	}

	if ctx.Err() != nil {
		out.Warning("Interrupted")
		return 130
	}
	return 0
}

// loadConfig reads the config file if one was given and applies the flag overrides
func loadConfig(args arguments) (config.Config, error) {
	cfg := config.Default()
	if args.Config != "" {
		var err error
		if cfg, err = config.Load(args.Config); err != nil {
			return cfg, err
		}
	}
	if args.LogLevel != "" {
		cfg.LogLevel = args.LogLevel
	}
	if args.Clamp {
		cfg.Walk.Clamp = true
	}
	if len(args.Markers) > 0 {
		cfg.Scanner.Markers = args.Markers
	}
	if args.MinLength > 0 {
		cfg.Scanner.MinStringLength = args.MinLength
	}
	return cfg, cfg.Validate()
}

func registerAnalyzers(registry *analyzer.Registry) {
	registry.Register(mp4analyzer.NewMP4Analyzer())
	registry.Register(raster.NewRasterAnalyzer())
	registry.Register(raw.NewRawAnalyzer())
	registry.SetFallback(raw.NewRawAnalyzer())
}

func registerExtractors(registry *extractor.Registry, cfg config.Config) {
	registry.Register(lsbextractor.NewLSBExtractor())
	registry.Register(boxdump.New(cfg.BoxOptions(), nil, cfg.MaxFileSize))
	registry.Register(wavlsb.New(cfg.MaxFileSize))
	registry.Register(zipcarve.New(cfg.MaxFileSize))
}

type session struct {
	registry *analyzer.Registry
	fallback analyzer.FileAnalyzer
	opts     analyzer.AnalysisOptions
	format   string
	out      *report.Printer
	log      *slog.Logger
	show     bool
	results  []*models.AnalysisResult
}

func (s *session) analyzeURL(ctx context.Context, url, downloadDir string) {
	s.out.Info("Downloading from %s", url)
	path, err := filehandler.DownloadFromURL(url, downloadDir)
	if err != nil {
		s.out.Error("Failed to download from %s: %v", url, err)
		return
	}
	s.out.Success("Downloaded to %s", path)
	s.analyzeFile(ctx, path)
}

// analyzeDir analyzes files one after another behind a progress bar, reports are held for the summary
func (s *session) analyzeDir(ctx context.Context, files []string) {
	show := s.show
	s.show = s.show && s.opts.Verbose
	defer func() { s.show = show }()

	var bar *pb.ProgressBar
	if !s.show {
		bar = pb.New(len(files)).SetWriter(os.Stderr).Start()
		defer bar.Finish()
	}
	for _, file := range files {
		if ctx.Err() != nil {
			return
		}
		s.analyzeFile(ctx, file)
		if bar != nil {
			bar.Increment()
		}
	}
}

// analyzeFile runs every analyzer registered for the file format and keeps the highest scoring result
func (s *session) analyzeFile(ctx context.Context, filePath string) {
	format := s.format
	if format == "" || format == "auto" {
		detected, err := filehandler.DetectFileFormat(filePath)
		if err != nil {
			s.out.Error("Failed to detect file format: %v", err)
			return
		}
		format = detected
	}

	opts := s.opts
	opts.Format = format
	start := time.Now()

	var best *models.AnalysisResult
	for _, a := range s.registry.GetAnalyzersForFormat(format) {
		s.log.Debug("running analyzer", "analyzer", a.Name(), "file", filePath, "format", format)
		result, err := a.Analyze(ctx, filePath, opts)
		if err != nil {
			if s.show {
				s.out.Error("Analysis with %s failed: %v", a.Name(), err)
			} else {
				s.log.Warn("analysis failed", "analyzer", a.Name(), "file", filePath, "err", err)
			}
			continue
		}
		if best == nil || result.DetectionScore > best.DetectionScore {
			best = result
		}
	}
	if best == nil && format != filehandler.FormatBinary {
		s.log.Debug("falling back to raw scan", "file", filePath)
		result, err := s.fallback.Analyze(ctx, filePath, opts)
		if err != nil {
			s.log.Warn("raw scan failed", "file", filePath, "err", err)
		}
		best = result
	}
	if best == nil {
		return
	}

	s.log.Debug("analysis finished", "file", filePath, "flags", len(best.Flags()), "duration", time.Since(start))
	if s.show {
		s.out.Result(best)
	}
	s.results = append(s.results, best)
}

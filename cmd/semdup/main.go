// Package main is the semdup CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/semdup/internal/chunker"
	"github.com/hyperjump/semdup/internal/cli"
	"github.com/hyperjump/semdup/internal/config"
	"github.com/hyperjump/semdup/internal/embedding"
	"github.com/hyperjump/semdup/internal/fileid"
	"github.com/hyperjump/semdup/internal/indexer"
	"github.com/hyperjump/semdup/internal/models"
	"github.com/hyperjump/semdup/internal/scan"
	"github.com/hyperjump/semdup/internal/storage"
	"github.com/hyperjump/semdup/internal/vector"
	"github.com/hyperjump/semdup/internal/watcher"
	"github.com/hyperjump/semdup/pkg/utils"
)

var version = "dev"

// configFileName is picked up from the working directory when -config is not given.
const configFileName = "semdup.yaml"

var stdout io.Writer = os.Stdout

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command, args := os.Args[1], os.Args[2:]
	var err error
	switch command {
	case "init":
		err = runInit(args)
	case "index":
		err = runIndex(args)
	case "similar":
		err = runSimilar(args)
	case "find":
		err = runFind(args)
	case "dupes":
		err = runDupes(args)
	case "status":
		err = runStatus(args)
	case "watch":
		err = runWatch(args)
	case "version", "--version", "-v":
		fmt.Printf("semdup version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "semdup %s: %v\n", command, err)
		os.Exit(1)
	}
}

// loadConfig loads config from path. With an empty path it uses semdup.yaml in the
// current directory when present, and the built-in defaults otherwise.
// Returns the config and the path that was loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		fallback := filepath.Join(cwd, configFileName)
		if _, err := os.Stat(fallback); err != nil {
			return config.Default(), "", nil
		}
		path = fallback
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// argsReorder moves any flags (and their values) that appear after positional
// arguments to the front so that flag.Parse sees them. Go's flag package stops at
// the first non-flag argument, so "semdup similar src/a.ts:12 -k 5" would otherwise
// leave -k unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// parseLocation splits "path:line" into an absolute path and a 1-based line.
func parseLocation(arg string) (string, int, error) {
	i := strings.LastIndexByte(arg, ':')
	if i <= 0 || i == len(arg)-1 {
		return "", 0, fmt.Errorf("expected <file>:<line>, got %q", arg)
	}
	line, err := strconv.Atoi(arg[i+1:])
	if err != nil || line < 1 {
		return "", 0, fmt.Errorf("invalid line number in %q", arg)
	}
	path, err := filepath.Abs(arg[:i])
	if err != nil {
		return "", 0, err
	}
	return path, line, nil
}

type commonFlags struct {
	configPath string
	format     string
	debug      bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.configPath, "config", "", "config file path (default: ./"+configFileName+" if present)")
	fs.StringVar(&c.format, "format", "text", "output format: text or json")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging")
	return c
}

// session bundles everything a command needs once config is resolved.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	idx    *indexer.Indexer
	layout storage.Layout
	out    cli.Writer
}

func (s *session) Close() {
	if s.idx != nil {
		_ = s.idx.Close()
	}
	_ = s.logger.Sync()
}

// openSession loads config, builds the indexer and restores the persisted stores.
// Commands that never embed text still work without an API key.
func openSession(c *commonFlags, root string, needEmbedder bool) (*session, error) {
	format, err := cli.ParseOutputFormat(c.format)
	if err != nil {
		return nil, err
	}
	cfg, resolved, err := loadConfig(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		cfg.Index.Root = abs
	}
	debug := cfg.Debug || c.debug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.String("root", cfg.Index.Root))

	var compLogger *zap.Logger
	if debug {
		compLogger = logger
	}
	idx, layout, err := openIndexer(cfg, compLogger, needEmbedder)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &session{
		cfg:    cfg,
		logger: logger,
		idx:    idx,
		layout: layout,
		out:    cli.Writer{Out: stdout, Format: format, Root: cfg.Index.Root},
	}, nil
}

func openIndexer(cfg *config.Config, logger *zap.Logger, needEmbedder bool) (*indexer.Indexer, storage.Layout, error) {
	layout, err := storage.NewLayout(cfg.Storage.Dir)
	if err != nil {
		return nil, storage.Layout{}, err
	}
	emb, err := embedding.New(cfg.Embedding, os.Getenv("OPENAI_API_KEY"), logger)
	if err != nil {
		if needEmbedder || !errors.Is(err, embedding.ErrMissingAPIKey) {
			return nil, layout, fmt.Errorf("embedding provider: %w", err)
		}
		emb = offlineEmbedder{dimensions: cfg.Embedding.Dimensions}
	}
	idx, err := indexer.NewIndexer(layout, emb,
		indexer.WithLogger(logger),
		indexer.WithChunker(chunker.NewBlockChunker(cfg.Index.MinChunkLines, cfg.Index.MaxChunkLines)),
		indexer.WithScanOptions(scan.Options{
			Extensions:     cfg.Index.Extensions,
			IgnorePatterns: cfg.Index.IgnorePatterns,
			MaxFileSize:    cfg.Index.MaxFileSize,
		}),
	)
	if err != nil {
		_ = emb.Close()
		return nil, layout, err
	}
	if err := idx.Load(); err != nil {
		_ = idx.Close()
		return nil, layout, err
	}
	return idx, layout, nil
}

// offlineEmbedder stands in when no API key is configured for commands that only
// read the stores.
type offlineEmbedder struct{ dimensions int }

func (e offlineEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, embedding.ErrMissingAPIKey
}

func (e offlineEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, embedding.ErrMissingAPIKey
}

func (e offlineEmbedder) Dimensions() int { return e.dimensions }
func (e offlineEmbedder) Close() error    { return nil }

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runInit writes a config file holding every default. Paths in it stay relative so
// the file keeps working when the project moves.
func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "overwrite an existing config file")
	_ = fs.Parse(argsReorder(args))

	path := fs.Arg(0)
	if path == "" {
		path = configFileName
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", path)
	return nil
}

func runIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	common := addCommonFlags(fs)
	rebuild := fs.Bool("rebuild", false, "discard the stored index and re-embed every file")
	_ = fs.Parse(argsReorder(args))

	s, err := openSession(common, fs.Arg(0), true)
	if err != nil {
		return err
	}
	defer s.Close()

	if *rebuild {
		s.logger.Info("rebuilding index", zap.String("storage", s.layout.Root))
		if err := s.layout.Reset(); err != nil {
			return err
		}
		// reload so the in-memory stores match the now-empty layout
		if err := s.idx.Load(); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext()
	defer cancel()
	report, err := s.idx.Run(ctx, s.cfg.Index.Root)
	if err != nil {
		if errors.Is(err, vector.ErrDimensionMismatch) {
			s.logger.Warn("stored vectors were built with another embedding model; run semdup index -rebuild")
		}
		return err
	}
	return s.out.WriteReport(report)
}

func runSimilar(args []string) error {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	common := addCommonFlags(fs)
	k := fs.Int("k", 0, "number of matches (default from config)")
	threshold := fs.Float64("threshold", indexer.NoThreshold, "minimum cosine similarity in [-1,1] (default from config)")
	all := fs.Bool("all", false, "disable the similarity threshold")
	text := fs.String("text", "", "find chunks similar to this snippet instead of an indexed chunk")
	_ = fs.Parse(argsReorder(args))

	if *text == "" && fs.NArg() < 1 {
		return errors.New("usage: semdup similar [flags] <chunk-id | file:line>  or  semdup similar -text <snippet>")
	}
	s, err := openSession(common, "", *text != "")
	if err != nil {
		return err
	}
	defer s.Close()

	if *k <= 0 {
		*k = s.cfg.Search.DefaultK
	}
	switch {
	case *all:
		*threshold = indexer.NoThreshold
	case *threshold <= indexer.NoThreshold:
		*threshold = s.cfg.Search.DefaultThreshold
	case *threshold < -1 || *threshold > 1:
		return fmt.Errorf("threshold %v out of range [-1,1]", *threshold)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if *text != "" {
		matches, err := s.idx.SimilarText(ctx, *text, *k, *threshold)
		if err != nil {
			return err
		}
		return s.out.WriteSimilar(nil, matches)
	}

	target := fs.Arg(0)
	if fileid.IsChunkID(target) {
		meta, ok := s.idx.Chunk(target)
		if !ok {
			return fmt.Errorf("%w: %s", indexer.ErrUnknownChunk, target)
		}
		matches, err := s.idx.SimilarTo(ctx, target, *k, *threshold)
		if err != nil {
			return err
		}
		return s.out.WriteSimilar(&models.ChunkRecord{ID: target, Metadata: meta}, matches)
	}
	path, line, err := parseLocation(target)
	if err != nil {
		return err
	}
	query, matches, err := s.idx.SimilarAt(ctx, path, line, *k, *threshold)
	if err != nil {
		return err
	}
	return s.out.WriteSimilar(&query, matches)
}

func runFind(args []string) error {
	fs := flag.NewFlagSet("find", flag.ExitOnError)
	common := addCommonFlags(fs)
	fuzzy := fs.Bool("fuzzy", false, "tolerate typos and match individual identifier words")
	kind := fs.String("kind", "", "only chunks of this kind: component, hook, function, class, other")
	limit := fs.Int("limit", 50, "maximum number of results")
	_ = fs.Parse(argsReorder(args))

	name := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if name == "" && *kind == "" {
		return errors.New("usage: semdup find [flags] <name>  or  semdup find -kind <kind>")
	}
	s, err := openSession(common, "", false)
	if err != nil {
		return err
	}
	defer s.Close()

	var records []models.ChunkRecord
	if name == "" {
		records = s.idx.ChunksByKind(models.ParseChunkKind(*kind))
		if *limit > 0 && len(records) > *limit {
			records = records[:*limit]
		}
	} else {
		records, err = s.idx.FindByName(name, *fuzzy, *limit)
		if err != nil {
			return err
		}
		if *kind != "" {
			records = filterKind(records, models.ParseChunkKind(*kind))
		}
	}
	return s.out.WriteRecords(records)
}

func filterKind(records []models.ChunkRecord, kind models.ChunkKind) []models.ChunkRecord {
	out := records[:0]
	for _, r := range records {
		if r.Metadata.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func runDupes(args []string) error {
	fs := flag.NewFlagSet("dupes", flag.ExitOnError)
	common := addCommonFlags(fs)
	_ = fs.Parse(argsReorder(args))

	s, err := openSession(common, "", false)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.out.WriteDuplicates(s.idx.ExactDuplicates())
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	common := addCommonFlags(fs)
	_ = fs.Parse(argsReorder(args))

	s, err := openSession(common, "", false)
	if err != nil {
		return err
	}
	defer s.Close()
	st, err := s.idx.Status()
	if err != nil {
		return err
	}
	return s.out.WriteStatus(st)
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	common := addCommonFlags(fs)
	_ = fs.Parse(argsReorder(args))

	s, err := openSession(common, fs.Arg(0), true)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	root := s.cfg.Index.Root
	pass := func(ctx context.Context) {
		report, err := s.idx.Run(ctx, root)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("indexing pass failed", zap.Error(err))
			}
			return
		}
		if report.Changed() || len(report.Failures) > 0 {
			_ = s.out.WriteReport(report)
		}
	}
	pass(ctx)

	watchOpts := []watcher.WatcherOption{
		watcher.WithDebounce(time.Duration(s.cfg.Watch.DebounceMs) * time.Millisecond),
		watcher.WithIgnorePatterns(s.cfg.Index.IgnorePatterns),
	}
	if s.cfg.Debug || common.debug {
		watchOpts = append(watchOpts, watcher.WithLogger(s.logger))
	}
	w, err := watcher.NewWatcher(root, s.cfg.Index.Extensions, func(ctx context.Context, paths []string) {
		s.logger.Debug("changes detected", zap.Int("paths", len(paths)))
		pass(ctx)
	}, watchOpts...)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	s.logger.Info("watching for changes", zap.String("root", root))
	<-ctx.Done()
	s.logger.Info("shutting down")
	return nil
}

func printUsage() {
	fmt.Println(`semdup - find semantically similar and duplicated code

Usage:
  semdup init [-force] [path]                  Write a config file with the defaults (default: ./semdup.yaml)
  semdup index [flags] [root]                  Index the tree incrementally (default root from config)
  semdup similar [flags] <chunk-id|file:line>  Chunks similar to an indexed chunk
  semdup similar -text <snippet> [flags]       Chunks similar to a code snippet
  semdup find [flags] <name>                   Chunks whose name matches
  semdup dupes [flags]                         Groups of byte-identical chunks
  semdup status [flags]                        Index statistics
  semdup watch [flags] [root]                  Index, then re-index on file changes
  semdup version                               Show version
  semdup help                                  Show this help

Common Flags:
  --config string    Config file path (default: ./semdup.yaml if present, else built-in defaults)
  --format string    Output format: text or json (default: text)
  --debug            Enable debug logging

Index Flags:
  --rebuild          Discard the stored index and re-embed every file

Similar Flags:
  --k int              Number of matches (default from config)
  --threshold float    Minimum cosine similarity (default from config)
  --all                Disable the similarity threshold
  --text string        Query with a code snippet instead of an indexed chunk

Find Flags:
  --fuzzy            Tolerate typos and match identifier words
  --kind string      Filter by kind: component, hook, function, class, other
  --limit int        Maximum number of results (default: 50)

Environment:
  OPENAI_API_KEY     Required by the openai embedding provider (also read from .env)

Examples:
  semdup init
  semdup index
  semdup index --rebuild ./src
  semdup similar src/hooks/useCounter.ts:12
  semdup similar --all -k 20 chunk:3f2a...
  semdup similar -text "const [count, setCount] = useState(0)"
  semdup find --fuzzy fromatDate
  semdup find --kind hook
  semdup dupes --format json`)
}

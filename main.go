package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/kovetskiy/lorg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/reconquest/pkg/log"

	"github.com/bonovoxly/confluence-exporter/internal/config"
	"github.com/bonovoxly/confluence-exporter/internal/confluence"
	"github.com/bonovoxly/confluence-exporter/internal/journal"
	"github.com/bonovoxly/confluence-exporter/internal/metrics"
	"github.com/bonovoxly/confluence-exporter/internal/orchestrator"
	"github.com/bonovoxly/confluence-exporter/internal/queue"
	"github.com/bonovoxly/confluence-exporter/internal/resume"
	"github.com/bonovoxly/confluence-exporter/internal/sentinel"
	"github.com/bonovoxly/confluence-exporter/internal/transform"
)

// Flags mirrors the docopt usage string below, the same binding
// pattern the teacher's main.go uses for its own Flags struct.
type Flags struct {
	Space               string `docopt:"--space"`
	Out                 string `docopt:"--out"`
	DryRun              bool   `docopt:"--dry-run"`
	Concurrency         string `docopt:"--concurrency"`
	Resume              bool   `docopt:"--resume"`
	Fresh               bool   `docopt:"--fresh"`
	Root                string `docopt:"--root"`
	LogLevel            string `docopt:"--log-level"`
	Config              string `docopt:"--config"`
	AttachmentThreshold string `docopt:"--attachment-threshold"`
	MetricsAddr         string `docopt:"--metrics-addr"`
}

const (
	version = "1.0"
	usage   = `confluence-exporter - export a Confluence space to local Markdown.

Usage:
  exporter --space <key> [--out <dir>] [--dry-run] [--concurrency <n>] [--resume | --fresh] [--root <pageId>] [--log-level <level>] [--config <path>] [--attachment-threshold <pct>] [--metrics-addr <addr>]
  exporter -h | --help
  exporter -v | --version

Options:
  --space <key>                  Confluence space key to export.
  --out <dir>                    Output directory. [default: .]
  --dry-run                      Resolve and transform pages but write no Markdown.
  --concurrency <n>              Worker pool size. [default: 5]
  --resume                       Continue a previously interrupted export.
  --fresh                        Discard any prior state and start over.
  --root <pageId>                Export only this page and its descendants.
  --log-level <level>            error, warn, info, or debug. [default: info]
  --config <path>                Optional YAML config file.
  --attachment-threshold <pct>   Max allowed attachment failure percentage.
  --metrics-addr <addr>          Serve Prometheus metrics on this address.
  -h --help                      Show this screen.
  -v --version                   Show version.
`
)

func main() {
	opts, err := docopt.ParseArgs(usage, nil, version)
	if err != nil {
		panic(err)
	}

	var flags Flags
	if err := opts.Bind(&flags); err != nil {
		log.Fatal(err)
	}

	configureLogging(flags.LogLevel)

	file, err := config.Load(flags.Config)
	if err != nil {
		log.Fatal(err)
	}

	creds, err := config.Resolve(file, config.Flags{LogLevel: flags.LogLevel})
	if err != nil {
		log.Error(err)
		os.Exit(5)
	}

	outputDir := filepath.Join(flags.Out, flags.Space)

	decision, err := resume.Validate(resume.Config{
		OutputDir: outputDir,
		Resume:    flags.Resume,
		Fresh:     flags.Fresh,
	})
	if err != nil {
		log.Error(err)
		os.Exit(2)
	}
	if decision.ShouldAbort {
		log.Error(decision.Message)
		os.Exit(4)
	}
	if decision.Message != "" {
		log.Info(decision.Message)
	}

	cfg := buildOrchestratorConfig(flags, outputDir)

	if decision.Mode == resume.ModeFresh {
		if err := resume.ClearPriorState(outputDir, cfg.JournalPath, cfg.QueueSnapshotPath); err != nil {
			log.Fatal(err)
		}
	}

	client := confluence.NewClient(confluence.Options{
		BaseURL:  creds.BaseURL,
		Username: creds.Username,
		Password: creds.Password,
	})

	var collectors *metrics.Collectors
	if flags.MetricsAddr != "" {
		var reg *prometheus.Registry
		collectors, reg = metrics.NewCollectors()
		go metrics.Serve(flags.MetricsAddr, reg)
	}

	orch := orchestrator.New(cfg, client, transform.Transform, collectors)

	if decision.Mode == resume.ModeResume {
		q, restoreResult, err := queue.Restore(cfg.QueueSnapshotPath, queue.Config{
			MaxQueueSize:         cfg.QueueMaxSize,
			PersistenceThreshold: cfg.PersistenceThreshold,
			MaxRetries:           cfg.MaxRetries,
		})
		if err != nil {
			log.Fatal(err)
		}
		orch.RestoreQueue(q)
		if !restoreResult.Recovered {
			log.Warningf(nil, "queue snapshot unrecoverable (%s), starting drained: %d items dropped", restoreResult.Source, restoreResult.DroppedItems)
		}

		if j, err := journal.Load(cfg.JournalPath); err == nil {
			orch.RestoreJournal(j)
		}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		log.Fatal(err)
	}

	if err := sentinel.WriteInProgress(cfg.InProgressPath, sentinel.InProgress{
		Timestamp: time.Now().Unix(),
		SpaceKey:  flags.Space,
	}); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go watchInterrupts(ctx, stop, orch)

	result, err := orch.Process(context.Background())
	if err != nil {
		log.Fatal(err)
	}

	exitCode := summarize(result)

	if !result.Interrupted && exitCode == 0 {
		if err := sentinel.WriteCompleted(cfg.CompletedPath, sentinel.Completed{Timestamp: time.Now().Unix()}); err != nil {
			log.Error(err)
		}
		_ = sentinel.RemoveInProgress(cfg.InProgressPath)
	}

	os.Exit(exitCode)
}

// watchInterrupts cancels the orchestrator gracefully on the first
// interrupt and hard-exits on a second (spec §6: "a second interrupt
// exits immediately with code 3").
func watchInterrupts(ctx context.Context, stop context.CancelFunc, orch *orchestrator.Orchestrator) {
	<-ctx.Done()
	log.Warning("interrupt received, finishing in-flight work and persisting state")
	orch.Cancel()
	stop()

	second := make(chan os.Signal, 1)
	signal.Notify(second, os.Interrupt, syscall.SIGTERM)
	<-second
	log.Warning("second interrupt received, exiting immediately")
	os.Exit(3)
}

func configureLogging(level string) {
	switch level {
	case "debug":
		log.SetLevel(lorg.LevelDebug)
	case "warn":
		log.SetLevel(lorg.LevelWarning)
	case "error":
		log.SetLevel(lorg.LevelError)
	default:
		log.SetLevel(lorg.LevelInfo)
	}
}

func buildOrchestratorConfig(flags Flags, outputDir string) orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.SpaceKey = flags.Space
	cfg.OutputDir = outputDir
	cfg.RootPageID = flags.Root
	cfg.DryRun = flags.DryRun

	if n, err := strconv.Atoi(flags.Concurrency); err == nil && n > 0 {
		cfg.ConcurrencyLimit = n
	}

	if pct, err := strconv.ParseFloat(flags.AttachmentThreshold, 64); err == nil {
		cfg.Thresholds.MaxAttachmentFailurePercentage = pct
	}

	cfg.JournalPath = filepath.Join(outputDir, "resume-journal.json")
	cfg.QueueSnapshotPath = filepath.Join(outputDir, ".queue-state.json")
	cfg.ManifestPath = filepath.Join(outputDir, "manifest.json")
	cfg.InProgressPath = filepath.Join(outputDir, sentinel.InProgressName)
	cfg.CompletedPath = filepath.Join(outputDir, sentinel.CompletedName)

	return cfg
}

// summarize prints the final structured summary (spec §7) and maps the
// result onto one of the stable exit codes (spec §6: 0 success, 1
// content failure, 3 interrupted).
func summarize(result orchestrator.Result) int {
	log.Infof(nil, "exported=%d failed=%d brokenLinks=%d", result.ExportedCount, result.FailedCount, result.BrokenLinks)

	for class, count := range result.RestrictedSummary.ByClassification {
		log.Infof(nil, "restricted: %s=%d", class, count)
	}

	if result.Interrupted {
		return 3
	}

	if result.RestrictedSummary.ThresholdExceeded {
		log.Error(result.RestrictedSummary.Reason)
		return 1
	}

	if result.FailedCount > 0 {
		return 1
	}

	return 0
}

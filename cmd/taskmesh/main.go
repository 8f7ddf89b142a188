package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taskmesh/taskmesh"
	"github.com/taskmesh/taskmesh/audit"
	"github.com/taskmesh/taskmesh/config"
	"github.com/taskmesh/taskmesh/internal/metrics"
	"github.com/taskmesh/taskmesh/internal/telemetry"
	"github.com/taskmesh/taskmesh/store"
	"github.com/taskmesh/taskmesh/types"
)

// Version information, injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "analyze":
		runAnalyze(os.Args[2:])
	case "run":
		runTask(os.Args[2:])
	case "explain":
		runExplain(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// env assembles the engine and its collaborators from configuration.
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	engine  *taskmesh.Engine
	metrics *prometheus.Registry
	otel    *telemetry.Providers
	cleanup []func()
}

func (e *env) close() {
	e.engine.Close()
	for i := len(e.cleanup) - 1; i >= 0; i-- {
		e.cleanup[i]()
	}
	if e.otel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.otel.Shutdown(ctx)
	}
	_ = e.logger.Sync()
}

func buildEnv(configPath string) (*env, error) {
	cfg, err := config.NewLoader().WithConfigPath(configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger}

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	} else {
		e.otel = otelProviders
	}

	var tasks types.TaskStore
	var trail types.AuditStore
	switch cfg.Store.Backend {
	case "sqlite":
		db, err := store.Open(cfg.Store.DB, logger)
		if err != nil {
			return nil, err
		}
		e.cleanup = append(e.cleanup, func() { _ = db.Close() })
		tasks, trail = db.Tasks(), db.Audit()
	default:
		tasks, trail = store.NewMemoryTaskStore(), store.NewMemoryAuditStore()
	}

	if cfg.Store.Cache.Enabled {
		cached, err := store.NewCachedTaskStore(cfg.Store.Cache.CacheConfig, tasks, logger)
		if err != nil {
			logger.Warn("redis cache unavailable, using backing store directly", zap.Error(err))
		} else {
			e.cleanup = append(e.cleanup, func() { _ = cached.Close() })
			tasks = cached
		}
	}

	registry := prometheus.NewRegistry()
	e.metrics = registry

	engine, err := taskmesh.New(newLocalProvider(),
		taskmesh.WithLogger(logger),
		taskmesh.WithTaskStore(tasks),
		taskmesh.WithAuditStore(trail),
		taskmesh.WithMetrics(metrics.NewCollector("taskmesh", registry)),
		taskmesh.WithAnalyzerConfig(cfg.Analyzer),
		taskmesh.WithPlannerConfig(cfg.Planner),
		taskmesh.WithExecutorConfig(cfg.Executor),
		taskmesh.WithAuditConfig(cfg.Audit),
	)
	if err != nil {
		return nil, err
	}
	e.engine = engine
	return e, nil
}

func runAnalyze(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)
	text := taskText(fs)

	e := mustBuildEnv(*configPath)
	defer e.close()

	got, err := e.engine.Analyze(context.Background(), text)
	if err != nil {
		fatal(err)
	}
	printJSON(got)
}

func runTask(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	priority := fs.String("priority", "", "Override priority (critical|high|medium|low)")
	workingContext := fs.String("context", "", "Extra context visible to every agent")
	dryRun := fs.Bool("dry-run", false, "Plan without executing")
	emergency := fs.Bool("emergency", false, "Shorten timeouts and skip supporting steps")
	fs.Parse(args)
	text := taskText(fs)

	e := mustBuildEnv(*configPath)
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	var metricsSrv *http.Server
	if port := e.cfg.Server.MetricsPort; port > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(e.metrics, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
		g.Go(func() error {
			e.logger.Info("serving metrics", zap.Int("port", port))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	var res *taskmesh.OrchestrateResult
	g.Go(func() error {
		defer func() {
			if metricsSrv != nil {
				sctx, cancel := context.WithTimeout(context.Background(), e.cfg.Server.ShutdownTimeout)
				defer cancel()
				_ = metricsSrv.Shutdown(sctx)
			}
		}()
		var err error
		res, err = e.engine.Orchestrate(gctx, text, taskmesh.OrchestrateOptions{
			Priority:       types.Priority(*priority),
			WorkingContext: *workingContext,
			DryRun:         *dryRun,
			Emergency:      *emergency,
		})
		return err
	})

	if err := g.Wait(); err != nil {
		fatal(err)
	}
	printJSON(res)

	if res.Record != nil && res.Record.Status == types.TaskFailed {
		os.Exit(1)
	}
}

func runExplain(args []string) {
	fs := flag.NewFlagSet("explain", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fatal(errors.New("usage: taskmesh explain <task-id>"))
	}

	e := mustBuildEnv(*configPath)
	defer e.close()

	trace, err := e.engine.Explain(context.Background(), fs.Arg(0))
	if err != nil {
		fatal(err)
	}
	printJSON(trace)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	agent := fs.String("agent", "", "Filter by agent id")
	window := fs.Duration("window", 0, "Only include records newer than this (e.g. 24h)")
	fs.Parse(args)

	e := mustBuildEnv(*configPath)
	defer e.close()

	f := audit.Filter{AgentID: *agent}
	if *window > 0 {
		f.Since = time.Now().Add(-*window)
	}
	stats, err := e.engine.Statistics(context.Background(), f)
	if err != nil {
		fatal(err)
	}
	printJSON(stats)
}

func taskText(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fatal(errors.New("a task description is required"))
	}
	return fs.Arg(0)
}

func mustBuildEnv(configPath string) *env {
	e, err := buildEnv(configPath)
	if err != nil {
		fatal(err)
	}
	return e
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printVersion() {
	fmt.Printf("taskmesh %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`taskmesh - multi-agent task orchestration engine

Usage:
  taskmesh <command> [options] [arguments]

Commands:
  analyze   Classify a task description without executing it
  run       Plan and execute a task
  explain   Show the decision trace for a task
  stats     Show aggregate statistics over the audit trail
  version   Show version information
  help      Show this help message

Options for 'run':
  --config <path>     Path to configuration file (YAML)
  --priority <p>      Override priority (critical|high|medium|low)
  --context <text>    Extra context visible to every agent
  --dry-run           Stop after planning; print the plan
  --emergency         Shorten timeouts and skip supporting steps

Examples:
  taskmesh analyze "Fix the critical bug in payment processing"
  taskmesh run --dry-run "Write unit tests for the billing module"
  taskmesh run --config taskmesh.yaml "Deploy the new release"
  taskmesh explain 2f1f9e0a-4a6c-4d7e-9be3-0c1a2b3c4d5e
  taskmesh stats --agent coder --window 24h`)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	apiPkg "github.com/h1v3-io/intake/internal/api"
	"github.com/h1v3-io/intake/internal/bot"
	"github.com/h1v3-io/intake/internal/config"
	slackconn "github.com/h1v3-io/intake/internal/connector/slack"
	"github.com/h1v3-io/intake/internal/conversation"
	"github.com/h1v3-io/intake/internal/dialogue"
	"github.com/h1v3-io/intake/internal/digest"
	"github.com/h1v3-io/intake/internal/filing"
	"github.com/h1v3-io/intake/internal/ledger"
	"github.com/h1v3-io/intake/internal/logbuf"
	"github.com/h1v3-io/intake/internal/provider"
	"github.com/h1v3-io/intake/internal/scheduler"
	"github.com/h1v3-io/intake/internal/tracker"
)

func main() {
	fs := pflag.NewFlagSet("intaked", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", os.Getenv("INTAKE_CONFIG"), "Path to config JSON/JSONC file (default: environment only)")
	verbose := fs.BoolP("verbose", "v", false, "Verbose logging")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, logBuf); err != nil {
		logger.Error("intaked exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("intaked stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, logBuf *logbuf.Buffer) error {
	loc, err := cfg.Intake.Location()
	if err != nil {
		return err
	}
	logger.Info("intaked starting",
		"team", cfg.Intake.TeamKey,
		"feature_channel", cfg.Intake.FeatureChannel,
		"summary_channel", cfg.Intake.SummaryChannel,
		"time_zone", loc.String(),
	)

	// 1. LLM provider + tracker
	prov := newProvider(cfg.Provider)
	logger.Info("provider initialized", "type", cfg.Provider.Type, "model", cfg.Provider.Model)

	var linearOpts []tracker.Option
	if cfg.Linear.Endpoint != "" {
		linearOpts = append(linearOpts, tracker.WithEndpoint(cfg.Linear.Endpoint))
	}
	linear := tracker.NewLinear(cfg.Linear.APIKey, linearOpts...)

	// 2. Optional filing ledger
	var filings ledger.Store
	if cfg.Ledger.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Ledger.Path), 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
		sqlStore, err := ledger.NewSQLiteStore(cfg.Ledger.Path)
		if err != nil {
			return fmt.Errorf("open ledger %s: %w", cfg.Ledger.Path, err)
		}
		defer sqlStore.Close()
		filings = sqlStore
		logger.Info("ledger opened", "path", cfg.Ledger.Path)
	}

	// 3. In-memory state
	store := conversation.NewStore(conversation.WithIdleTimeout(cfg.Intake.IdleTimeout.Std()))
	stats := conversation.NewDailyStats(loc, nil)

	extractionModel := cfg.Provider.ExtractionModel
	if extractionModel == "" {
		extractionModel = cfg.Provider.Model
	}
	filer := &filing.Filer{
		Provider: prov,
		Model:    extractionModel,
		Tracker:  linear,
		TeamKey:  cfg.Intake.TeamKey,
		Stats:    stats,
		Ledger:   filings,
		BotName:  cfg.Intake.BotName,
		Logger:   logger.With("component", "filer"),
	}
	handler := &bot.Handler{
		Store:          store,
		Dialogue:       &dialogue.Engine{Provider: prov},
		Filer:          filer,
		FeatureChannel: cfg.Intake.FeatureChannel,
		Logger:         logger.With("component", "bot"),
	}

	// 4. Slack connector
	conn, err := slackconn.New(slackconn.Config{
		BotToken: cfg.Slack.BotToken,
		AppToken: cfg.Slack.AppToken,
		Home: slackconn.HomeConfig{
			BotName:        cfg.Intake.BotName,
			FeatureChannel: cfg.Intake.FeatureChannel,
			TeamKey:        cfg.Intake.TeamKey,
		},
	}, handler.HandleMessage, logger.With("connector", "slack"))
	if err != nil {
		return err
	}
	handler.Chat = conn
	filer.Names = conn

	// 5. Scheduled jobs
	sched := scheduler.New(loc, logger.With("component", "scheduler"))
	digestJob := &digest.Job{
		Tracker: linear,
		Stats:   stats,
		Chat:    conn,
		TeamKey: cfg.Intake.TeamKey,
		Channel: cfg.Intake.SummaryChannel,
		Logger:  logger.With("component", "digest"),
	}
	if err := sched.AddJob("digest", cfg.Intake.DigestSchedule, digestJob.Run); err != nil {
		return err
	}
	if cfg.Intake.IdleTimeout > 0 {
		if err := sched.AddJob("idle-sweep", cfg.Intake.SweepSchedule, handler.SweepIdle); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(safeGo(logger, "slack", func() error { return conn.Start(gctx) }))
	g.Go(safeGo(logger, "scheduler", func() error { return sched.Start(gctx) }))

	// 6. Operator API
	if cfg.API.Port != 0 {
		svc := &intakeService{store: store, stats: stats, ledger: filings, sched: sched, started: time.Now(), logger: logger}
		apiSrv := apiPkg.NewServer(svc, apiPkg.Config{
			Host: cfg.API.Host,
			Port: cfg.API.Port,
			Key:  cfg.API.Key,
		}, logger.With("component", "api"), logBuf)
		g.Go(safeGo(logger, "api-server", func() error { return apiSrv.Start(gctx) }))
	}

	<-gctx.Done()
	logger.Info("shutting down")
	return g.Wait()
}

func newProvider(pcfg config.ProviderConfig) provider.Provider {
	hc := &http.Client{Timeout: 120 * time.Second}
	switch pcfg.Type {
	case config.ProviderOpenAI:
		opts := []provider.OpenAIOption{provider.WithHTTPClient(hc)}
		if pcfg.BaseURL != "" {
			opts = append(opts, provider.WithBaseURL(pcfg.BaseURL))
		}
		if pcfg.Model != "" {
			opts = append(opts, provider.WithModel(pcfg.Model))
		}
		return provider.NewOpenAI(pcfg.APIKey, opts...)
	default:
		opts := []provider.AnthropicOption{provider.WithAnthropicHTTPClient(hc)}
		if pcfg.BaseURL != "" {
			opts = append(opts, provider.WithAnthropicBaseURL(pcfg.BaseURL))
		}
		if pcfg.Model != "" {
			opts = append(opts, provider.WithAnthropicModel(pcfg.Model))
		}
		return provider.NewAnthropic(pcfg.APIKey, opts...)
	}
}

// safeGo wraps fn with panic recovery for use with errgroup.
func safeGo(logger *slog.Logger, name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
				err = fmt.Errorf("%s: panic: %v", name, r)
			}
		}()
		return fn()
	}
}

// intakeService implements api.IntakeService over the daemon's state.
type intakeService struct {
	store   *conversation.Store
	stats   *conversation.DailyStats
	ledger  ledger.Store
	sched   *scheduler.Scheduler
	started time.Time
	logger  *slog.Logger
}

func (s *intakeService) Conversations() []conversation.Summary { return s.store.List() }

func (s *intakeService) Conversation(key string) (conversation.State, bool) {
	return s.store.Get(key)
}

func (s *intakeService) Stats() apiPkg.Stats {
	date, filed := s.stats.Today()
	st := apiPkg.Stats{
		Date:              date,
		Filed:             filed,
		OpenConversations: s.store.Len(),
		StartedAt:         s.started,
		Jobs:              s.sched.Jobs(),
	}
	if s.ledger != nil {
		failed := ledger.StatusFailed
		n, err := s.ledger.Count(ledger.Filter{Status: &failed})
		if err != nil {
			s.logger.Warn("count failed filings", "error", err)
		} else {
			st.FailedFilings = n
		}
	}
	return st
}

func (s *intakeService) Filings(f ledger.Filter) ([]*ledger.Filing, error) {
	if s.ledger == nil {
		return nil, apiPkg.ErrLedgerDisabled
	}
	return s.ledger.List(f)
}

func (s *intakeService) RunDigest(ctx context.Context) error {
	return s.sched.RunNow(ctx, "digest")
}

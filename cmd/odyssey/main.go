package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
	"github.com/odyssey-erp/odyssey-ledger/migrations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 {
		os.Exit(runCommand(ctx, cfg, logger, os.Args[1], os.Args[2:]))
	}
	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.MigrationsAuto {
		migrator, err := db.NewMigrator(cfg.PGDSN, migrations.FS, logger)
		if err != nil {
			return err
		}
		err = migrator.Up()
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("close migrator", slog.Any("error", closeErr))
		}
		if err != nil {
			return err
		}
	}

	pool, err := db.New(ctx, cfg.Pool())
	if err != nil {
		return err
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	deps := app.LedgerDeps{
		Pool:    pool,
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Audit:   shared.NewAuditLogger(pool),
	}

	var jobHandler *jobs.Handler
	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis unavailable, running without distributed locks and notifications", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		client := jobs.NewClient(redisOpts)
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}()
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		deps.Locker = shared.NewRedisLocker(redisClient, cfg.LedgerLockTTL)
		deps.Notifier = jobs.NewNotifier(client, logger, jobmetrics.NewMetrics(metrics.Registerer()))
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	ledger := app.NewLedger(deps)
	params := app.HandlersFor(logger, ledger)
	params.Config = cfg
	params.Metrics = metrics
	params.DB = pool
	params.JobHandler = jobHandler

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      app.NewRouter(params),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, name string, args []string) int {
	switch name {
	case "verify-bank":
		return verifyBank(ctx, cfg, logger, args)
	case "jobs":
		return inspectJobs(ctx, cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want verify-bank or jobs)\n", name)
		return 2
	}
}

func verifyBank(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("verify-bank", flag.ContinueOnError)
	tenant := fs.Int64("tenant", 0, "tenant id")
	accounts := fs.String("accounts", "", "comma separated bank account ids")
	jsonOut := fs.Bool("json", false, "print a JSON summary")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ids, err := cli.ParseIDs(*accounts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify-bank: %v\n", err)
		return 2
	}

	pool, err := db.New(ctx, cfg.Pool())
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	ledger := app.NewLedger(app.LedgerDeps{Pool: pool, Logger: logger, Config: cfg})
	verifier, err := cli.NewVerifyCLI(ledger.Bank)
	if err != nil {
		logger.Error("init verifier", slog.Any("error", err))
		return 1
	}
	return verifier.VerifyCommand(ctx, cli.VerifyOptions{
		TenantID:       *tenant,
		BankAccountIDs: ids,
		JSONOutput:     *jsonOut,
	})
}

func inspectJobs(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	stats, err := jobsCLI.InspectQueue(ctx)
	if err != nil {
		logger.Error("inspect queue", slog.Any("error", err))
		return 1
	}
	archived, err := jobsCLI.ListArchived(ctx, 10)
	if err != nil {
		logger.Error("list archived", slog.Any("error", err))
		return 1
	}
	out := struct {
		cli.QueueStats
		ArchivedTypes []string `json:"archived_types"`
	}{QueueStats: stats}
	for _, task := range archived {
		out.ArchivedTypes = append(out.ArchivedTypes, task.Type)
	}
	if err := json.NewEncoder(os.Stdout).Encode(out); err != nil {
		logger.Error("encode stats", slog.Any("error", err))
		return 1
	}
	return 0
}

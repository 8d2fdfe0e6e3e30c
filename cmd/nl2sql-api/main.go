package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Sachin-Sharma-20/NL2SQL/internal/api"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/assistant"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/auth"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/config"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/database"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/nl2sql"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/observability"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/query"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/retention"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/schema"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/session"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/sqlguard"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/storage"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/storage/local"
	s3store "github.com/Sachin-Sharma-20/NL2SQL/internal/storage/s3"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/workpool"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", slog.Any("error", err))
	}

	cfg, err := config.LoadFromEnv("nl2sql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	dialect, err := database.ParseDialect(cfg.Database.Driver)
	if err != nil {
		logger.Error("invalid database driver", slog.Any("error", err))
		os.Exit(1)
	}
	db, err := database.Open(context.Background(), database.DBConfig{
		Driver:          dialect,
		DSN:             cfg.Database.DSN,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Name:            cfg.Database.Name,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		DialTimeout:     cfg.Database.DialTimeout,
		ExecTimeout:     cfg.Database.ExecTimeout,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	catalog := schema.NewCatalog(schema.SQLLoader{DB: db, Dialect: dialect}, cfg.Schema.CacheTTL)

	scratch, err := local.New(cfg.Export.ScratchDir)
	if err != nil {
		logger.Error("failed to prepare scratch dir", slog.Any("error", err))
		os.Exit(1)
	}
	if err := scratch.Reset(); err != nil {
		logger.Error("failed to clear scratch dir", slog.Any("error", err))
		os.Exit(1)
	}
	artifacts := &storage.Artifacts{Local: scratch}
	readiness := []api.ReadinessCheck{api.PingDatabase(db)}
	if cfg.ObjectStore.Enabled {
		remote, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		artifacts.Remote = remote
		artifacts.KeepLocal = cfg.ObjectStore.KeepLocal
		readiness = append(readiness, remote.HealthCheck)
	}

	binding, err := sqlguard.ParseBinding(cfg.Query.ColumnBinding)
	if err != nil {
		logger.Error("invalid column binding", slog.Any("error", err))
		os.Exit(1)
	}
	syntax := sqlguard.SyntaxFor(string(dialect))
	validator := sqlguard.Validator{Binding: binding, Syntax: syntax}

	previewer := query.NewExecutor(db, cfg.Query.PreviewRows)
	previewer.Syntax = syntax
	exporter := query.NewExporter(db, scratch, cfg.Query.PreviewRows, cfg.Query.ChunkSize)
	exporter.Syntax = syntax
	exporter.OnChunk = observability.ObserveExportChunk

	sessions := session.NewStore(cfg.Session.MaxTurns)
	service := &assistant.Service{
		Schema:         catalog,
		Validator:      validator,
		Previewer:      previewer,
		Exporter:       exporter,
		Publisher:      artifacts,
		Sessions:       sessions,
		Pool:           workpool.New(cfg.Query.Workers),
		Logger:         logger,
		SummaryTimeout: cfg.AI.SummaryTimeout,
	}
	if cfg.AI.Enabled {
		client, err := nl2sql.New(nl2sql.Config{
			Provider:    cfg.AI.Provider,
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize model client", slog.Any("error", err))
			os.Exit(1)
		}
		service.Translator = client
		if cfg.AI.SummaryEnabled {
			service.Summarizer = client
		}
	}

	retentionService := &retention.Service{
		Stores:   artifacts.Stores(),
		Sessions: sessions,
		Config: retention.Config{
			Interval:       cfg.Export.SweepInterval,
			MaxFiles:       cfg.Export.MaxFiles,
			MaxAge:         cfg.Export.MaxAge,
			SessionIdleTTL: cfg.Session.IdleTTL,
		},
		Logger: logger,
	}

	deps := api.Dependencies{
		Logger:            logger,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: 2 * time.Second,
		Assistant:         service,
		Schema:            catalog,
		Validator:         validator,
		Artifacts:         artifacts,
		Retention:         retentionService,
	}
	if cfg.Auth.Required {
		keys, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, keys)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		_ = retentionService.Run(ctx)
	}()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("dialect", dialect.DisplayName()),
			slog.Bool("ai_enabled", cfg.AI.Enabled),
			slog.Bool("object_store_mirror", artifacts.Mirrored()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

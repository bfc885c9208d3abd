package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/equisheet/scoresheet-tracker/constants"
	"github.com/equisheet/scoresheet-tracker/internal/auth"
	"github.com/equisheet/scoresheet-tracker/internal/common"
	"github.com/equisheet/scoresheet-tracker/internal/export"
	"github.com/equisheet/scoresheet-tracker/internal/gemini"
	"github.com/equisheet/scoresheet-tracker/internal/pipeline"
	"github.com/equisheet/scoresheet-tracker/internal/repository"
	"github.com/equisheet/scoresheet-tracker/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	root := &cobra.Command{
		Use:           "scoresheetd",
		Short:         "Dressage score sheet extraction service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(logger), extractCmd(logger), exportCmd(logger), dbhealthCmd(logger))

	if err := root.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// openStore picks the backend from the DSN: "sqlite:" or a bare file path
// opens the embedded store, anything else goes to the pgx pool.
func openStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (repository.Store, error) {
	dsn := cfg.Database.DSN
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		s, err := repository.OpenPostgres(ctx, repository.PostgresConfig{
			DSN:             dsn,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			DialTimeout:     cfg.Database.DialTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := repository.OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite:"), logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func buildOrchestrator(cfg *common.Config, store repository.Store, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	identity, err := auth.LoadIdentity(cfg.Identity.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading service identity: %w", err)
	}
	tokens := auth.NewClient(identity, cfg.Identity.Scope, nil, logger)
	model := gemini.NewClient(gemini.Config{
		BaseURL:     cfg.Model.BaseURL,
		Model:       cfg.Model.Model,
		Temperature: cfg.Model.Temperature,
		Timeout:     cfg.Model.Timeout,
	}, nil, logger)
	return pipeline.NewOrchestrator(store, tokens, model, logger), nil
}

func serveCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP extraction service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := common.LoadConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer func() { _ = store.Close() }()

			if err := store.HealthCheck(ctx); err != nil {
				return fmt.Errorf("store health: %w", err)
			}
			logger.Info("store health OK")

			orch, err := buildOrchestrator(cfg, store, logger)
			if err != nil {
				return err
			}

			srv := server.New(cfg.Server.Addr, orch, store, logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func extractCmd(logger *slog.Logger) *cobra.Command {
	var (
		documentID string
		filePath   string
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Run one extraction for a stored document and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := common.LoadConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}
			docID, err := uuid.Parse(documentID)
			if err != nil {
				return fmt.Errorf("invalid --document-id: %w", err)
			}
			ext := constants.NormalizeExt(filepath.Ext(filePath))
			if _, ok := constants.AllowedExtensions[ext]; !ok {
				return fmt.Errorf("unsupported file extension %q", ext)
			}
			document, err := os.ReadFile(filePath)
			if err != nil {
				return fmt.Errorf("reading --file: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer func() { _ = store.Close() }()

			orch, err := buildOrchestrator(cfg, store, logger)
			if err != nil {
				return err
			}

			res, err := orch.Extract(ctx, docID, document)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&documentID, "document-id", "", "document id (uuid)")
	cmd.Flags().StringVar(&filePath, "file", "", "path to the scanned sheet")
	_ = cmd.MarkFlagRequired("document-id")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func exportCmd(logger *slog.Logger) *cobra.Command {
	var (
		ownerID string
		fromStr string
		toStr   string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an owner's extraction records to an XLSX workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := common.LoadConfig()
			if cfg.Database.DSN == "" {
				return common.NewAppError("CONFIG_ERROR", "DB_URL is required", common.ErrInvalidInput)
			}
			owner, err := uuid.Parse(ownerID)
			if err != nil {
				return fmt.Errorf("invalid --owner-id: %w", err)
			}
			from, err := parseDateFlag(fromStr)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			to, err := parseDateFlag(toStr)
			if err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer func() { _ = store.Close() }()

			svc := export.NewService(store.Extractions(), logger)
			out, err := svc.ExportExtractionsXLSX(ctx, owner, from, to)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, out, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", outPath, err)
			}
			logger.Info("export written", "path", outPath, "bytes", len(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner-id", "", "owner id (uuid)")
	cmd.Flags().StringVar(&fromStr, "from", "", "window start, YYYY-MM-DD")
	cmd.Flags().StringVar(&toStr, "to", "", "window end, YYYY-MM-DD")
	cmd.Flags().StringVar(&outPath, "out", "extractions.xlsx", "output path")
	_ = cmd.MarkFlagRequired("owner-id")
	return cmd
}

func dbhealthCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "dbhealth",
		Short: "Check store connectivity and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := common.LoadConfig()
			if cfg.Database.DSN == "" {
				return common.NewAppError("CONFIG_ERROR", "DB_URL is required", common.ErrInvalidInput)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer func() { _ = store.Close() }()

			if err := store.HealthCheck(ctx); err != nil {
				return fmt.Errorf("store health: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "store health: OK")
			return nil
		},
	}
}

func parseDateFlag(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

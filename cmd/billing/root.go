package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/config"
	"github.com/warp/billing-engine/logging"
	"github.com/warp/billing-engine/store/sqlite"
)

var version = "1.0.0"

// app holds the dependencies built once per invocation.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *sqlite.Store
	svc    *billing.Service
}

var (
	current *app
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:   "billing",
	Short: "Billing engine - time entries to invoices, invoices and payments to statements",
	Long: `billing aggregates tracked time into invoices and reconstructs client
account statements from invoices and payment applications.

Configuration is read from BILLING_* environment variables and an optional
.env file in the working directory.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cmd.Flags().Changed("db") {
			cfg.DBPath = dbPath
		}

		logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		current = &app{
			cfg:    cfg,
			logger: logger,
			store:  store,
			svc:    billing.NewService(store, logger),
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return current.close()
	},
}

// close flushes the logger and releases the database. Safe on a nil app.
func (a *app) close() error {
	if a == nil {
		return nil
	}
	_ = a.logger.Sync()
	return a.store.Close()
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// execute runs the root command. Cobra skips PersistentPostRunE when RunE
// fails, so the error path closes the app here.
func execute() error {
	err := rootCmd.Execute()
	if err != nil && current != nil {
		current.logger.Error("command failed", zap.Error(err))
		_ = current.close()
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", `SQLite database path (overrides BILLING_DB_PATH; ":memory:" for in-memory)`)

	rootCmd.AddCommand(serveCmd, nextNumberCmd, previewCmd, createInvoiceCmd, statementCmd, seedCmd)
}

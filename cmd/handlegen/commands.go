package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/viant/afs"
	"github.com/viant/handlegen"
	"github.com/viant/handlegen/service/status"
	"github.com/viant/handlegen/tracing"
)

const version = "0.1.0"

var (
	configURL string
	stateRoot string
	logLevel  string
	logFormat string
	batches   int

	rootCmd = &cobra.Command{
		Use:           "handlegen",
		Short:         "Generates pattern-shaped handles and scans them for availability",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Produce batches and probe them until interrupted",
		RunE:  runScan,
	}

	generateCmd = &cobra.Command{
		Use:   "generate",
		Short: "Produce batches ahead of the scan cursor without probing",
		RunE:  runGenerate,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print template statistics and weights",
		RunE:  runStats,
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print the status report as JSON",
		RunE:  runStatus,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configURL, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&stateRoot, "root", "", "state directory, overrides stateRoot")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "text or json")
	generateCmd.Flags().IntVarP(&batches, "batches", "n", 1, "number of batches to produce")

	rootCmd.AddCommand(runCmd, generateCmd, statsCmd, statusCmd)
}

// loadConfig reads --config over the defaults and applies flag overrides.
func loadConfig(ctx context.Context) (*handlegen.Config, error) {
	cfg := handlegen.DefaultConfig()
	if configURL != "" {
		loaded, err := handlegen.LoadConfig(ctx, afs.New(), configURL)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if stateRoot != "" {
		cfg.StateRoot = stateRoot
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, cfg.Validate()
}

// open builds the service with a logger; the returned closer releases the
// log file.
func open(ctx context.Context, withLogFile bool) (*handlegen.Service, func(), error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	logger, closeLog, err := newLogger(cfg.Logging, cfg.StateRoot, withLogFile && cfg.Logging.File, time.Now())
	if err != nil {
		return nil, nil, err
	}
	srv, err := handlegen.New(cfg, handlegen.WithLogger(logger))
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return srv, func() {
		if err := srv.Close(); err != nil {
			logger.Error("failed to close", "error", err)
		}
		closeLog()
	}, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	srv, closeFn, err := open(ctx, true)
	if err != nil {
		return err
	}
	defer closeFn()
	cfg := srv.Config()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(tracing.Config{ServiceName: "handlegen", Version: version, RunID: srv.RunID(), File: cfg.Tracing.File})
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	if cfg.Metrics.Address != "" {
		server := status.New(srv, srv.Metrics().Handler(), slog.Default())
		if _, err := server.Start(cfg.Metrics.Address); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			srv.RequestStop()
		}
	}()
	return srv.Run(ctx)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if batches <= 0 {
		return fmt.Errorf("--batches must be > 0")
	}
	ctx := cmd.Context()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	cfg.Batch.Window = batches
	logger, closeLog, err := newLogger(cfg.Logging, cfg.StateRoot, false, time.Now())
	if err != nil {
		return err
	}
	defer closeLog()
	srv, err := handlegen.New(cfg, handlegen.WithLogger(logger))
	if err != nil {
		return err
	}
	defer srv.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			srv.RequestStop()
		}
	}()

	if err := srv.Initialize(ctx); err != nil {
		return err
	}
	if err := srv.EnsureWindow(ctx, srv.Checkpoint().CurrentBatch); err != nil {
		return err
	}
	return srv.Wait()
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	srv, closeFn, err := open(ctx, false)
	if err != nil {
		return err
	}
	defer closeFn()
	if err := srv.Initialize(ctx); err != nil {
		return err
	}
	return printStats(cmd.OutOrStdout(), srv.Status())
}

func printStats(w io.Writer, report status.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEMPLATE\tTRIES\tSUCCESSES\tWEIGHT")
	for _, item := range report.Weights {
		record := report.Stats[item.Key]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.4f\n", item.Key, record.Tries, record.Successes, item.Weight)
	}
	fmt.Fprintf(tw, "\nchecked\t%d\n", report.Checkpoint.TotalChecks)
	fmt.Fprintf(tw, "batch\t%d\n", report.Checkpoint.CurrentBatch)
	fmt.Fprintf(tw, "index\t%d\n", report.Checkpoint.CurrentIndex)
	fmt.Fprintf(tw, "pending\t%d\n", report.Pending)
	return tw.Flush()
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	srv, closeFn, err := open(ctx, false)
	if err != nil {
		return err
	}
	defer closeFn()
	if err := srv.Initialize(ctx); err != nil {
		return err
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(srv.Status())
}

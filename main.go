package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"campaign_worker/adapter/in/worker"
	"campaign_worker/adapter/out/dataset"
	"campaign_worker/config"
	"campaign_worker/internal/bootstrap"
	"campaign_worker/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
	startupTimeout  = 30 * time.Second
)

func main() {
	logger.Init(logger.Config{
		Level:   logger.LevelInfo,
		Service: "campaign_worker",
	})

	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	mode := flag.String("mode", "all", "Run mode: api, worker, all, batch")
	input := flag.String("input", "", "Batch input file (.csv, .xlsx, .json, .jsonl)")
	output := flag.String("output", "", "Optional batch result file (.csv, .xlsx)")
	dryRun := flag.String("dry-run", "", "Override DRY_RUN for batch mode (true/false)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}
	if cfg.IsDevelopment() {
		logger.Init(logger.Config{Level: logger.LevelDebug, Service: "campaign_worker"})
	}

	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	deps, cleanup, err := bootstrap.NewDependencies(startCtx, cfg)
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	switch *mode {
	case "api":
		runAPI(bootstrap.NewAPI(deps, deps.Jobs), cfg)
	case "worker":
		runWorker(bootstrap.NewWorker(deps))
	case "all":
		w := bootstrap.NewWorker(deps)
		go runWorker(w)
		runAPI(bootstrap.NewAPI(deps, w.Queue()), cfg)
	case "batch":
		if err := runBatch(deps, *input, *output, *dryRun); err != nil {
			logger.Error("Batch failed: %v", err)
			cleanup()
			os.Exit(1)
		}
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}
}

func runAPI(app *fiber.App, cfg *config.Config) {
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("Error shutting down: %v", err)
		} else {
			logger.Info("API server shut down gracefully")
		}
	}()

	addr := ":" + cfg.Port
	logger.Info("Starting API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}

func runWorker(w *bootstrap.Worker) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker (timeout: %v)...", shutdownTimeout)

		done := make(chan struct{})
		go func() {
			w.Stop()
			close(done)
		}()

		select {
		case <-done:
			logger.Info("Worker shut down gracefully")
		case <-time.After(shutdownTimeout):
			logger.Warn("Worker shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}()

	logger.Info("Starting worker...")
	if err := w.Start(); err != nil {
		logger.Fatal("Failed to start worker: %v", err)
	}
}

// =============================================================================
// Batch mode
// =============================================================================

var batchHeader = []string{"customer_id", "run_id", "segment", "outcome", "failed_stage", "winner", "delivery", "error"}

func runBatch(deps *bootstrap.Dependencies, input, output, dryRunFlag string) error {
	if input == "" {
		return fmt.Errorf("-input is required in batch mode")
	}
	customers, err := dataset.LoadCustomers(input)
	if err != nil {
		return err
	}

	opts := worker.BatchOptions{Concurrency: deps.Config.BatchConcurrency}
	if dryRunFlag != "" {
		v := strings.EqualFold(dryRunFlag, "true")
		opts.DryRun = &v
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	results, err := worker.RunBatch(ctx, deps.Pipeline, customers, opts)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		row := batchRow(r)
		rows = append(rows, row)
		fmt.Println(strings.Join(row, "\t"))
	}

	s := worker.Summarize(results)
	fmt.Printf("total=%d winners=%d no_winner=%d failed=%d errors=%d elapsed=%s\n",
		s.Total, s.Winners, s.NoWinner, s.Failed, s.Errors, time.Since(start).Round(time.Millisecond))

	if output != "" {
		if err := dataset.WriteTable(output, batchHeader, rows); err != nil {
			return err
		}
		logger.Info("Batch results written to %s", output)
	}
	return nil
}

func batchRow(r worker.BatchResult) []string {
	row := []string{r.CustomerID, "", "", "", "", "", "", ""}
	if r.Err != nil {
		row[7] = r.Err.Error()
		return row
	}

	st := r.State
	row[1] = st.RunID
	if st.Segment != nil {
		row[2] = st.Segment.Segment
	}
	row[3] = string(st.Outcome)
	row[4] = string(st.FailedStage)
	if st.Analysis.HasWinner() {
		row[5] = st.Analysis.Winner.VariantID
	}
	if st.Delivery != nil {
		row[6] = string(st.Delivery.Status)
	}
	if len(st.Errors) > 0 {
		row[7] = st.Errors[len(st.Errors)-1].Message
	}
	return row
}

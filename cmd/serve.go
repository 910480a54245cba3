package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"findoc/internal/analysis"
	"findoc/internal/api"
	"findoc/internal/config"
	"findoc/internal/llm"
	"findoc/internal/logger"
	"findoc/internal/ocr"
	"findoc/internal/output"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the document processing HTTP API",
	Long: `Start the HTTP server that accepts financial document images and returns
structured financial data.

The server exposes:
  POST /api/process-document - process an uploaded or base64-encoded image
  GET  /api/health           - liveness and LLM server reachability

Documents are run through OCR (Tesseract by default, Google Cloud Vision
when OCR_ENGINE=vision) and then through two passes against a local
OpenAI-compatible LLM server such as LM Studio.`,
	Example: `  # Serve on the default address :5001
  findoc serve

  # Serve on a custom address
  findoc serve --addr :8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: LISTEN_ADDR or :5001)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.ListenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, cleanup, err := newPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	server, err := api.NewServer(pipeline, cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("ocr_engine", cfg.OCREngine).
			Str("llm_base_url", cfg.LLMBaseURL).
			Msg("HTTP server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
	}

	log.Info().Msg("HTTP server stopped")
	return nil
}

// newPipeline wires the OCR engine, LLM client and output writer into the
// analysis service. The returned cleanup releases the OCR engine if needed.
func newPipeline(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*analysis.Service, func(), error) {
	ocrService, cleanup, err := newOCRService(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	llmClient := llm.New(llm.Config{
		BaseURL:        cfg.LLMBaseURL,
		APIKey:         cfg.LLMAPIKey,
		Model:          cfg.LLMModel,
		MaxRetries:     cfg.LLMMaxRetries,
		ParseTimeout:   cfg.LLMParseTimeout,
		AnalyzeTimeout: cfg.LLMAnalyzeTimeout,
	})

	if !llmClient.CheckServer(ctx) {
		log.Warn().
			Str("base_url", cfg.LLMBaseURL).
			Msg("LLM server is not reachable, document requests will fail until it is started")
	}

	writer, err := output.NewWriter(cfg.OutputDir)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create output writer: %w", err)
	}

	return analysis.NewService(ocrService, llmClient, writer), cleanup, nil
}

// newOCRService builds the engine selected by OCR_ENGINE.
func newOCRService(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ocr.Service, func(), error) {
	switch cfg.OCREngine {
	case config.EngineVision:
		service, err := ocr.NewGoogleVisionService(ctx, cfg.GoogleCredentials, cfg.GoogleApplicationCredentials)
		if err != nil {
			if errors.Is(err, ocr.ErrMissingCredentials) {
				return nil, nil, fmt.Errorf("Google Cloud credentials validation failed. Please verify:\n\n"+
					"1. GOOGLE_APPLICATION_CREDENTIALS points to a readable service account JSON file, or\n"+
					"2. GOOGLE_CREDENTIALS contains inline JSON credentials\n\n"+
					"Original error: %w", err)
			}
			return nil, nil, fmt.Errorf("failed to create Vision OCR service: %w", err)
		}
		cleanup := func() {
			if err := service.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Vision client")
			}
		}
		log.Debug().Msg("Using Google Cloud Vision OCR engine")
		return service, cleanup, nil
	default:
		log.Debug().Strs("languages", cfg.OCRLanguages).Msg("Using Tesseract OCR engine")
		return ocr.NewTesseractService(cfg.OCRLanguages), func() {}, nil
	}
}

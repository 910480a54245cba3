package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"findoc/internal/config"
	"findoc/internal/llm"
	"findoc/internal/logger"
	"findoc/internal/ocr"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [image-file]",
	Short: "Run the full analysis pipeline on a single document image",
	Long: `Process one financial document image through OCR and the LLM analysis
passes, then write the results next to the configured output directory.

Three files are produced per document:
  <name>_results.txt                - markdown asset overview
  <name>_financial_analysis.txt     - raw income statement analysis
  <name>_financial_analysis.json    - structured income statement

The LLM server must be running before this command is invoked.`,
	Example: `  # Analyze a scanned balance sheet
  findoc analyze balance-sheet.png

  # Write results to a specific directory and print the structured data
  findoc analyze statement.jpg --output-dir ./results --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringP("output-dir", "o", "", "Directory for result files (default: OUTPUT_DIR or ./output)")
	analyzeCmd.Flags().Bool("json", false, "Print the extracted financial data as JSON to stdout")
	analyzeCmd.Flags().Int("timeout", 900, "Overall processing timeout in seconds")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("analyze")

	outputDir, _ := cmd.Flags().GetString("output-dir")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	imagePath := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}

	log.Info().
		Str("file", imagePath).
		Str("output_dir", cfg.OutputDir).
		Str("ocr_engine", cfg.OCREngine).
		Int("timeout", timeoutSecs).
		Msg("Starting document analysis")

	if err := validateImageFile(imagePath, log); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, cleanup, err := newPipeline(sigCtx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if !pipeline.Ready(sigCtx) {
		return fmt.Errorf("%w at %s, start the server and try again",
			llm.ErrServerUnavailable, cfg.LLMBaseURL)
	}

	imageFile, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("failed to open image file: %w", err)
	}
	defer func() {
		if closeErr := imageFile.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close image file")
		}
	}()

	baseName := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))

	startTime := time.Now()
	result, err := pipeline.ProcessImage(sigCtx, baseName, imageFile)
	if err != nil {
		return handleAnalysisError(err, log)
	}

	log.Info().
		Str("engine", result.OCR.Engine).
		Float32("confidence", result.OCR.Confidence).
		Int("text_length", len(result.OCR.Text)).
		Dur("duration", time.Since(startTime)).
		Msg("Document analysis completed")

	fmt.Printf("Results written to:\n  %s\n  %s\n  %s\n",
		result.ResultsPath, result.AnalysisPath, result.JSONPath)

	if jsonOutput {
		data, err := json.MarshalIndent(result.Statement, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal financial data: %w", err)
		}
		fmt.Println(string(data))
	}

	return nil
}

// validateImageFile checks that the path is a readable, non-empty regular file
// within the size limit.
func validateImageFile(imagePath string, log zerolog.Logger) error {
	fileInfo, err := os.Stat(imagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("image file not found: %s", imagePath)
		}
		if os.IsPermission(err) {
			return fmt.Errorf("permission denied accessing image file: %s", imagePath)
		}
		return fmt.Errorf("error accessing image file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		return fmt.Errorf("path is not a regular file: %s", imagePath)
	}

	if fileInfo.Size() == 0 {
		return fmt.Errorf("image file is empty: %s", imagePath)
	}

	if fileInfo.Size() > ocr.MaxFileSizeBytes {
		return fmt.Errorf("image file too large (%d bytes). Maximum size is %d bytes (20MB)",
			fileInfo.Size(), ocr.MaxFileSizeBytes)
	}

	ext := strings.ToLower(filepath.Ext(imagePath))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
	default:
		log.Warn().
			Str("file", imagePath).
			Msg("File does not have a common image extension")
	}

	return nil
}

// handleAnalysisError maps pipeline failures to user-friendly messages.
func handleAnalysisError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Document analysis failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("analysis timed out. Try increasing --timeout or processing a smaller image")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("analysis was canceled")
	case errors.Is(err, ocr.ErrImageTooLarge):
		return fmt.Errorf("image is too large (maximum 20MB). Try compressing the file")
	case errors.Is(err, ocr.ErrUnsupportedFormat):
		return fmt.Errorf("unsupported image format. PNG, JPEG and TIFF are supported")
	case errors.Is(err, ocr.ErrEmptyDocument):
		return fmt.Errorf("no readable text found in the document. The image may be blank or too low quality")
	case errors.Is(err, ocr.ErrMissingCredentials):
		return fmt.Errorf("Google Cloud credentials are missing or invalid: %w", err)
	default:
		return err
	}
}

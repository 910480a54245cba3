// Package analysis runs the document pipeline: OCR, two LLM passes, JSON
// recovery and artifact persistence.
package analysis

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"findoc/internal/financial"
	"findoc/internal/logger"
	"findoc/internal/ocr"
	"findoc/internal/output"
)

// LLM is the subset of the inference client the pipeline needs.
type LLM interface {
	// CheckServer reports whether the inference server is reachable.
	CheckServer(ctx context.Context) bool

	// ParseDocument produces the markdown asset overview for OCR text.
	ParseDocument(ctx context.Context, text string) (string, error)

	// AnalyzeFinancials produces the income-statement analysis for OCR text.
	AnalyzeFinancials(ctx context.Context, text string) (string, error)
}

// Service orchestrates the processing pipeline for one document image.
type Service struct {
	ocr ocr.Service
	llm LLM
	out *output.Writer
	log zerolog.Logger
}

// NewService wires the pipeline dependencies together.
func NewService(ocrService ocr.Service, llm LLM, out *output.Writer) *Service {
	return &Service{
		ocr: ocrService,
		llm: llm,
		out: out,
		log: logger.WithComponent("analysis"),
	}
}

// Result carries everything the pipeline produced for one document.
type Result struct {
	// OCR holds the raw text and extraction metadata.
	OCR *ocr.Result

	// ParseOutput is the markdown overview from the first LLM pass.
	ParseOutput string

	// AnalysisOutput is the raw text of the second LLM pass.
	AnalysisOutput string

	// Statement is the income statement recovered from AnalysisOutput.
	Statement financial.Statement

	// Artifact paths inside the output directory.
	ResultsPath  string
	AnalysisPath string
	JSONPath     string
}

// Ready reports whether the LLM server can accept work.
func (s *Service) Ready(ctx context.Context) bool {
	return s.llm.CheckServer(ctx)
}

// ProcessImage runs the full pipeline on a document image. baseName (without
// extension) names the artifacts written to the output directory.
func (s *Service) ProcessImage(ctx context.Context, baseName string, image io.Reader) (*Result, error) {
	s.log.Info().Str("document", baseName).Msg("Processing document")

	ocrResult, err := s.ocr.ProcessImageWithMetadata(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("error during OCR processing: %w", err)
	}

	s.log.Info().
		Str("document", baseName).
		Str("engine", ocrResult.Engine).
		Int("text_length", len(ocrResult.Text)).
		Float32("confidence", ocrResult.Confidence).
		Dur("duration", ocrResult.ProcessingDuration).
		Msg("OCR extraction completed")

	result := &Result{OCR: ocrResult}

	result.ParseOutput, err = s.llm.ParseDocument(ctx, ocrResult.Text)
	if err != nil {
		return nil, fmt.Errorf("error during initial parsing: %w", err)
	}
	result.ResultsPath, err = s.out.SaveText(baseName+"_results.txt", result.ParseOutput)
	if err != nil {
		return nil, err
	}

	result.AnalysisOutput, err = s.llm.AnalyzeFinancials(ctx, ocrResult.Text)
	if err != nil {
		return nil, fmt.Errorf("error during financial analysis: %w", err)
	}
	result.AnalysisPath, err = s.out.SaveText(baseName+"_financial_analysis.txt", result.AnalysisOutput)
	if err != nil {
		return nil, err
	}

	result.Statement, err = financial.ExtractStatement(result.AnalysisOutput)
	if err != nil {
		return nil, fmt.Errorf("failed to extract structured financial data from the analysis: %w", err)
	}
	result.JSONPath, err = s.out.SaveJSON(baseName+"_financial_analysis.json", result.Statement)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document", baseName).
		Int("metrics", len(result.Statement)).
		Str("json_path", result.JSONPath).
		Msg("Document processing completed")

	return result, nil
}

// Package api exposes the document processing pipeline over HTTP.
package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"findoc/internal/analysis"
	"findoc/internal/logger"
	"findoc/internal/ocr"
)

const (
	maxMultipartMemory = 32 << 20 // 32 MB

	// maxRequestBytes caps the request body: the image size limit plus
	// base64 inflation (4/3) and form envelope headroom.
	maxRequestBytes = ocr.MaxFileSizeBytes*4/3 + 1<<20
)

// Server handles the document processing HTTP API.
type Server struct {
	mux       *http.ServeMux
	pipeline  *analysis.Service
	uploadDir string
	log       zerolog.Logger
}

// NewServer creates the API server and ensures the upload directory exists.
func NewServer(pipeline *analysis.Service, uploadDir string) (*Server, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", uploadDir, err)
	}

	s := &Server{
		mux:       http.NewServeMux(),
		pipeline:  pipeline,
		uploadDir: uploadDir,
		log:       logger.WithComponent("api"),
	}
	s.routes()
	return s, nil
}

// Handler returns the server's handler with CORS and request-ID middleware applied.
func (s *Server) Handler() http.Handler {
	return withCORS(s.withRequestID(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/process-document", s.handleProcessDocument)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"llm_server": s.pipeline.Ready(r.Context()),
	})
}

// processResponse is the success payload for /api/process-document.
type processResponse struct {
	Success       bool    `json:"success"`
	FinancialData any     `json:"financial_data"`
	Analysis      string  `json:"analysis"`
	FilePath      string  `json:"file_path"`
	OCR           ocrInfo `json:"ocr"`
}

type ocrInfo struct {
	Engine     string  `json:"engine"`
	Text       string  `json:"text"`
	TextLength int     `json:"text_length"`
	Confidence float32 `json:"confidence"`
	DurationMS int64   `json:"duration_ms"`
}

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()

	// The pipeline is pointless without the inference server, so fail fast.
	if !s.pipeline.Ready(ctx) {
		writeError(w, http.StatusServiceUnavailable,
			"LLM server is not running. Please start the server first.")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var baseName string
	var image []byte
	var err error

	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		baseName, image, err = s.readBase64Document(r)
	} else {
		baseName, image, err = s.readUploadedDocument(r)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.pipeline.ProcessImage(ctx, baseName, bytes.NewReader(image))
	if err != nil {
		s.log.Error().Err(err).Str("document", baseName).Msg("Document processing failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		Success:       true,
		FinancialData: result.Statement,
		Analysis:      result.AnalysisOutput,
		FilePath:      filepath.Base(result.JSONPath),
		OCR: ocrInfo{
			Engine:     result.OCR.Engine,
			Text:       result.OCR.Text,
			TextLength: len(result.OCR.Text),
			Confidence: result.OCR.Confidence,
			DurationMS: result.OCR.ProcessingDuration.Milliseconds(),
		},
	})
}

// readBase64Document decodes a JSON body of the form {"image": "<base64>"}.
func (s *Server) readBase64Document(r *http.Request) (string, []byte, error) {
	var payload struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return "", nil, fmt.Errorf("invalid JSON payload")
	}
	if payload.Image == "" {
		return "", nil, fmt.Errorf("no image data provided")
	}

	// Accept both bare base64 and data URIs (data:image/png;base64,...).
	encoded := payload.Image
	if idx := strings.Index(encoded, ";base64,"); idx != -1 {
		encoded = encoded[idx+len(";base64,"):]
	}

	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 image data")
	}

	return "inline-" + uuid.NewString()[:8], image, nil
}

// readUploadedDocument reads a multipart upload with file field "document"
// and keeps a copy in the upload directory.
func (s *Server) readUploadedDocument(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return "", nil, fmt.Errorf("invalid multipart form")
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		return "", nil, fmt.Errorf("no document file provided")
	}
	defer file.Close()

	if header.Filename == "" {
		return "", nil, fmt.Errorf("empty file name")
	}

	image, err := io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read uploaded file")
	}

	filename := sanitizeFilename(header.Filename)
	uploadPath := filepath.Join(s.uploadDir, filename)
	if err := os.WriteFile(uploadPath, image, 0o644); err != nil {
		s.log.Warn().Err(err).Str("path", uploadPath).Msg("Failed to keep upload copy")
	}

	baseName := strings.TrimSuffix(filename, filepath.Ext(filename))
	return baseName, image, nil
}

// sanitizeFilename strips any path components and replaces characters that
// are unsafe in file names.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" || strings.Trim(out, "._") == "" {
		out = "document"
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

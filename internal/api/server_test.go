package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"findoc/internal/analysis"
	"findoc/internal/ocr"
	"findoc/internal/output"
)

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) ProcessImage(ctx context.Context, image io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeOCR) ProcessImageWithMetadata(ctx context.Context, image io.Reader) (*ocr.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ocr.Result{Text: f.text, Engine: "fake", Confidence: 0.85}, nil
}

type fakeLLM struct {
	up         bool
	analyzeOut string
}

func (f *fakeLLM) CheckServer(ctx context.Context) bool { return f.up }

func (f *fakeLLM) ParseDocument(ctx context.Context, text string) (string, error) {
	return "### Key Assets Overview", nil
}

func (f *fakeLLM) AnalyzeFinancials(ctx context.Context, text string) (string, error) {
	return f.analyzeOut, nil
}

const goodAnalysis = "Here you go.\n```json\n" +
	`{"Revenue": {"value": 100000, "from": "2022-01-01", "to": "2022-12-31"}}` +
	"\n```"

func newTestServer(t *testing.T, llm *fakeLLM) (*Server, string) {
	t.Helper()
	out, err := output.NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	uploadDir := t.TempDir()
	pipeline := analysis.NewService(&fakeOCR{text: "REVENUE 100,000"}, llm, out)
	srv, err := NewServer(pipeline, uploadDir)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv, uploadDir
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLLM{up: true})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" || body["llm_server"] != true {
		t.Fatalf("unexpected body: %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID header")
	}
}

func TestProcessDocumentMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLLM{up: true})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/process-document", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestProcessDocumentLLMDown(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLLM{up: false})

	req := httptest.NewRequest(http.MethodPost, "/api/process-document",
		strings.NewReader(`{"image": "aGVsbG8="}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestProcessDocumentBase64(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLLM{up: true, analyzeOut: goodAnalysis})

	image := base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/process-document",
		strings.NewReader(`{"image": "`+image+`"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("unexpected body: %v", body)
	}
	data := body["financial_data"].(map[string]any)
	if _, ok := data["Revenue"]; !ok {
		t.Fatalf("missing Revenue: %v", data)
	}
	if body["analysis"] != goodAnalysis {
		t.Fatalf("analysis = %v", body["analysis"])
	}
	ocrBlock := body["ocr"].(map[string]any)
	if ocrBlock["text"] != "REVENUE 100,000" {
		t.Fatalf("ocr text = %v", ocrBlock["text"])
	}
	filePath := body["file_path"].(string)
	if !strings.HasPrefix(filePath, "inline-") || !strings.HasSuffix(filePath, "_financial_analysis.json") {
		t.Fatalf("unexpected file_path: %s", filePath)
	}
}

func TestProcessDocumentBase64DataURI(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLLM{up: true, analyzeOut: goodAnalysis})

	image := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
	payload, _ := json.Marshal(map[string]string{"image": image})
	req := httptest.NewRequest(http.MethodPost, "/api/process-document", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestProcessDocumentMissingImage(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLLM{up: true, analyzeOut: goodAnalysis})

	req := httptest.NewRequest(http.MethodPost, "/api/process-document", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if !strings.Contains(body["error"].(string), "no image data") {
		t.Fatalf("unexpected error: %v", body)
	}
}

func TestProcessDocumentRejectsOversizedBody(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLLM{up: true, analyzeOut: goodAnalysis})

	// Valid base64 just past the request body cap, so only the cap rejects it.
	padding := strings.Repeat("A", (maxRequestBytes/4+1)*4)
	req := httptest.NewRequest(http.MethodPost, "/api/process-document",
		strings.NewReader(`{"image": "`+padding+`"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestProcessDocumentInvalidBase64(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLLM{up: true, analyzeOut: goodAnalysis})

	req := httptest.NewRequest(http.MethodPost, "/api/process-document",
		strings.NewReader(`{"image": "!!not-base64!!"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func multipartUpload(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestProcessDocumentUpload(t *testing.T) {
	srv, uploadDir := newTestServer(t, &fakeLLM{up: true, analyzeOut: goodAnalysis})

	buf, contentType := multipartUpload(t, "document", "statement.png", []byte("fake image bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/process-document", buf)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["file_path"] != "statement_financial_analysis.json" {
		t.Fatalf("unexpected file_path: %v", body["file_path"])
	}

	// The upload is kept in the upload directory.
	if _, err := os.Stat(filepath.Join(uploadDir, "statement.png")); err != nil {
		t.Fatalf("upload copy not written: %v", err)
	}
}

func TestProcessDocumentUploadMissingFile(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLLM{up: true, analyzeOut: goodAnalysis})

	buf, contentType := multipartUpload(t, "other", "statement.png", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/process-document", buf)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if !strings.Contains(body["error"].(string), "no document file") {
		t.Fatalf("unexpected error: %v", body)
	}
}

func TestProcessDocumentPipelineFailure(t *testing.T) {
	// Analysis output without any JSON makes the extraction step fail.
	srv, _ := newTestServer(t, &fakeLLM{up: true, analyzeOut: "no structure here"})

	image := base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/process-document",
		strings.NewReader(`{"image": "`+image+`"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLLM{up: true})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/process-document", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"statement.png", "statement.png"},
		{"../../etc/passwd", "passwd"},
		{"my report (final).png", "my_report__final_.png"},
		{"///", "document"},
		{"", "document"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

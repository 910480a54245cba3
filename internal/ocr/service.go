// Package ocr provides OCR (Optical Character Recognition) for financial
// document images.
//
// Two engines are available:
//   - Tesseract (default): runs locally via the gosseract bindings, no
//     network access or credentials required.
//   - Google Cloud Vision: document text detection through the Cloud Vision
//     API, selected with OCR_ENGINE=vision.
//
// Both engines implement the Service interface. Inputs are single images
// (PNG, JPEG or TIFF); PDF handling is out of scope, callers are expected to
// rasterize pages before submitting them.
package ocr

import (
	"context"
	"io"
	"time"
)

// Service defines the interface for OCR text extraction services.
type Service interface {
	// ProcessImage extracts text from a document image.
	ProcessImage(ctx context.Context, image io.Reader) (string, error)

	// ProcessImageWithMetadata extracts text from a document image with
	// additional metadata such as confidence scores and timing.
	ProcessImageWithMetadata(ctx context.Context, image io.Reader) (*Result, error)
}

// Result contains the results of OCR processing with metadata.
type Result struct {
	// Text is the extracted text content.
	Text string `json:"text"`

	// Confidence is the average confidence score across all detected text (0.0 to 1.0).
	Confidence float32 `json:"confidence"`

	// Engine names the OCR engine that produced the result.
	Engine string `json:"engine"`

	// LanguageCodes contains the detected or requested languages.
	LanguageCodes []string `json:"language_codes,omitempty"`

	// ProcessedAt is the timestamp when the OCR processing completed.
	ProcessedAt time.Time `json:"processed_at"`

	// ProcessingDuration is how long the OCR processing took.
	ProcessingDuration time.Duration `json:"processing_duration"`
}

const (
	// MaxFileSizeBytes is the maximum accepted image size (20MB).
	MaxFileSizeBytes = 20 * 1024 * 1024
)

// readImage buffers the image and validates size and format before handing
// the bytes to an engine.
func readImage(op string, image io.Reader) ([]byte, error) {
	data, err := io.ReadAll(image)
	if err != nil {
		return nil, WrapError(op, err, "failed to read image data")
	}
	if len(data) > MaxFileSizeBytes {
		return nil, WrapError(op, ErrImageTooLarge, "")
	}
	if DetectFormat(data) == "" {
		return nil, WrapError(op, ErrUnsupportedFormat, "image is not PNG, JPEG or TIFF")
	}
	return data, nil
}

// DetectFormat sniffs the image format from magic bytes. It returns the MIME
// type, or an empty string for anything that is not PNG, JPEG or TIFF.
func DetectFormat(data []byte) string {
	switch {
	case len(data) >= 8 &&
		data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G':
		return "image/png"
	case len(data) >= 3 &&
		data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case len(data) >= 4 &&
		((data[0] == 'I' && data[1] == 'I' && data[2] == 0x2A && data[3] == 0x00) ||
			(data[0] == 'M' && data[1] == 'M' && data[2] == 0x00 && data[3] == 0x2A)):
		return "image/tiff"
	default:
		return ""
	}
}

package ocr

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// TesseractService implements Service using a local Tesseract installation
// through the gosseract bindings.
type TesseractService struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewTesseractService creates a Tesseract-backed OCR service. The languages
// are Tesseract traineddata names such as "eng" or "deu"; an empty slice
// leaves the engine default in place.
func NewTesseractService(languages []string) *TesseractService {
	return &TesseractService{
		languages:     append([]string(nil), languages...),
		clientFactory: gosseract.NewClient,
	}
}

// ProcessImage extracts text from a document image.
func (t *TesseractService) ProcessImage(ctx context.Context, image io.Reader) (string, error) {
	result, err := t.ProcessImageWithMetadata(ctx, image)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// ProcessImageWithMetadata extracts text from a document image with metadata.
func (t *TesseractService) ProcessImageWithMetadata(ctx context.Context, image io.Reader) (*Result, error) {
	const op = "ProcessImageWithMetadata"
	startTime := time.Now()

	data, err := readImage(op, image)
	if err != nil {
		return nil, err
	}

	// gosseract calls cannot be interrupted, so honor cancellation up front.
	if err := ctx.Err(); err != nil {
		return nil, WrapError(op, err, "")
	}

	client := t.clientFactory()
	defer client.Close()

	if len(t.languages) > 0 {
		if err := client.SetLanguage(t.languages...); err != nil {
			return nil, WrapError(op, ErrOCRFailed, "failed to set languages: "+err.Error())
		}
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, WrapError(op, ErrOCRFailed, "failed to set image: "+err.Error())
	}

	text, err := client.Text()
	if err != nil {
		return nil, WrapError(op, ErrOCRFailed, "recognition failed: "+err.Error())
	}
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(op, ErrEmptyDocument, "")
	}

	result := &Result{
		Text:          text,
		Confidence:    wordConfidence(client),
		Engine:        "tesseract",
		LanguageCodes: append([]string(nil), t.languages...),
		ProcessedAt:   time.Now(),
	}
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	return result, nil
}

// wordConfidence averages word-level confidences from Tesseract's bounding
// boxes, scaled from the 0-100 range into 0.0-1.0.
func wordConfidence(client *gosseract.Client) float32 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}

	var sum float64
	for _, box := range boxes {
		sum += box.Confidence
	}
	return float32(sum / float64(len(boxes)) / 100.0)
}

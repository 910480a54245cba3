package ocr

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// GoogleVisionService implements Service using the Google Cloud Vision API.
type GoogleVisionService struct {
	client *vision.ImageAnnotatorClient
}

// NewGoogleVisionService creates a new OCR service. Inline JSON credentials
// take precedence over a service account file path; when both are empty,
// application default credentials are tried.
func NewGoogleVisionService(ctx context.Context, credJSON, credFile string) (*GoogleVisionService, error) {
	const op = "NewGoogleVisionService"

	var client *vision.ImageAnnotatorClient
	var err error

	switch {
	case credJSON != "":
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapError(op, err, "failed to create client with inline JSON credentials")
		}
	case credFile != "":
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapError(op, err, "failed to create client with credentials file")
		}
	default:
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapError(op, ErrMissingCredentials, "no credentials configured")
		}
	}

	return &GoogleVisionService{
		client: client,
	}, nil
}

// NewGoogleVisionServiceWithClient creates a new OCR service with an explicit client (for testing).
func NewGoogleVisionServiceWithClient(client *vision.ImageAnnotatorClient) *GoogleVisionService {
	return &GoogleVisionService{
		client: client,
	}
}

// ProcessImage extracts text from a document image.
func (g *GoogleVisionService) ProcessImage(ctx context.Context, image io.Reader) (string, error) {
	result, err := g.ProcessImageWithMetadata(ctx, image)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// ProcessImageWithMetadata extracts text from a document image with metadata.
func (g *GoogleVisionService) ProcessImageWithMetadata(ctx context.Context, image io.Reader) (*Result, error) {
	const op = "ProcessImageWithMetadata"
	startTime := time.Now()

	data, err := readImage(op, image)
	if err != nil {
		return nil, err
	}

	annotation, err := g.client.DetectDocumentText(ctx, &visionpb.Image{Content: data}, nil)
	if err != nil {
		return nil, WrapError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if annotation == nil || strings.TrimSpace(annotation.Text) == "" {
		return nil, WrapError(op, ErrEmptyDocument, "")
	}

	result := annotationToResult(annotation)
	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	return result, nil
}

// annotationToResult aggregates confidence and language information from the
// full text annotation.
func annotationToResult(annotation *visionpb.TextAnnotation) *Result {
	var confidenceSum float32
	var confidenceCount int
	languageSet := make(map[string]bool)

	for _, page := range annotation.Pages {
		if page.Confidence > 0 {
			confidenceSum += page.Confidence
			confidenceCount++
		}
		if page.Property != nil {
			for _, lang := range page.Property.DetectedLanguages {
				if lang.LanguageCode != "" {
					languageSet[lang.LanguageCode] = true
				}
			}
		}
	}

	var avgConfidence float32
	if confidenceCount > 0 {
		avgConfidence = confidenceSum / float32(confidenceCount)
	}

	var languages []string
	for lang := range languageSet {
		languages = append(languages, lang)
	}

	return &Result{
		Text:          annotation.Text,
		Confidence:    avgConfidence,
		Engine:        "vision",
		LanguageCodes: languages,
	}
}

// Close closes the underlying Vision client.
func (g *GoogleVisionService) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

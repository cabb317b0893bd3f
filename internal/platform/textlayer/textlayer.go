// Package textlayer turns uploaded source files into the plain text the
// extraction engine reads. Plain text passes through, PDFs are read from
// their text layer, and scanned images (or image-only PDFs) go to an
// optional OCR collaborator.
package textlayer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNoText          = errors.New("no extractable text")
	ErrOCRUnavailable  = errors.New("document needs OCR but no recognizer is configured")
)

// Acquisition methods.
const (
	MethodPlain    = "plain_text"
	MethodPDFLayer = "pdf_text_layer"
	MethodOCR      = "ocr"
)

// TextRecognizer performs OCR on a page image or an image-only PDF.
type TextRecognizer interface {
	RecognizeText(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Text is the result of acquiring a source file.
type Text struct {
	Content  string   `json:"-"`
	MIME     string   `json:"mime"`
	Method   string   `json:"method"`
	Pages    int      `json:"pages,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Acquirer dispatches on the sniffed MIME type. OCR may be nil.
type Acquirer struct {
	ocr TextRecognizer
}

func New(ocr TextRecognizer) *Acquirer {
	return &Acquirer{ocr: ocr}
}

var imageTypes = []string{"image/png", "image/jpeg", "image/tiff", "image/webp"}

// Acquire sniffs data and returns its text. The filename is not trusted for
// type detection.
func (a *Acquirer) Acquire(ctx context.Context, data []byte) (*Text, error) {
	if len(data) == 0 {
		return nil, ErrNoText
	}
	mt := mimetype.Detect(data)

	switch {
	case isText(mt):
		content := strings.TrimSpace(string(data))
		if content == "" {
			return nil, ErrNoText
		}
		return &Text{Content: content, MIME: "text/plain", Method: MethodPlain}, nil

	case mt.Is("application/pdf"):
		return a.fromPDF(ctx, data)

	case isImage(mt):
		base := strings.SplitN(mt.String(), ";", 2)[0]
		content, err := a.recognize(ctx, data, base)
		if err != nil {
			return nil, err
		}
		return &Text{Content: content, MIME: base, Method: MethodOCR, Pages: 1}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
}

// isText accepts text/plain and its descendants (csv, tsv and the like).
func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func isImage(mt *mimetype.MIME) bool {
	for _, t := range imageTypes {
		if mt.Is(t) {
			return true
		}
	}
	return false
}

func (a *Acquirer) fromPDF(ctx context.Context, data []byte) (*Text, error) {
	out := &Text{MIME: "application/pdf", Method: MethodPDFLayer}

	pages, err := pageCount(data)
	if err != nil {
		out.Warnings = append(out.Warnings, fmt.Sprintf("pdf validation: %v", err))
	}

	content, layerPages, err := pdfTextLayer(data)
	if err != nil {
		out.Warnings = append(out.Warnings, fmt.Sprintf("pdf text layer: %v", err))
	}
	if pages == 0 {
		pages = layerPages
	}
	out.Pages = pages

	if strings.TrimSpace(content) != "" {
		out.Content = content
		return out, nil
	}

	// Scanned PDF: nothing in the text layer.
	content, err = a.recognize(ctx, data, "application/pdf")
	if err != nil {
		return nil, err
	}
	out.Content = content
	out.Method = MethodOCR
	return out, nil
}

func (a *Acquirer) recognize(ctx context.Context, data []byte, mimeType string) (string, error) {
	if a.ocr == nil {
		return "", ErrOCRUnavailable
	}
	content, err := a.ocr.RecognizeText(ctx, data, mimeType)
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrNoText
	}
	return content, nil
}

package records

import (
	"time"

	"github.com/google/uuid"

	"github.com/medrec/medrec/internal/extraction"
)

// Source records which extractor produced a document's result.
type Source string

const (
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// Document is an uploaded source file together with its extraction.
type Document struct {
	ID        uuid.UUID                   `json:"id"`
	FileName  string                      `json:"file_name"`
	BlobID    string                      `json:"blob_id,omitempty"`
	MIME      string                      `json:"mime,omitempty"`
	Method    string                      `json:"text_method,omitempty"`
	Pages     int                         `json:"pages,omitempty"`
	Source    Source                      `json:"source"`
	Type      extraction.DocumentType     `json:"document_type"`
	Outcome   extraction.Outcome          `json:"outcome"`
	Result    extraction.ExtractionResult `json:"result"`
	LabDebug  *extraction.LabDebug        `json:"lab_debug,omitempty"`
	Warnings  []string                    `json:"warnings,omitempty"`
	CreatedBy string                      `json:"created_by,omitempty"`
	CreatedAt time.Time                   `json:"created_at"`
}

// Upload is one file handed to the service for ingestion.
type Upload struct {
	FileName  string
	Data      []byte
	CreatedBy string
}

// BatchItem reports the outcome of one file in a batch. Exactly one of
// Document and Error is set.
type BatchItem struct {
	FileName string    `json:"file_name"`
	Document *Document `json:"document,omitempty"`
	Error    string    `json:"error,omitempty"`
}

package records

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/medrec/medrec/internal/extraction"
	"github.com/medrec/medrec/internal/platform/blobstore"
	"github.com/medrec/medrec/internal/platform/textlayer"
)

// AIExtractor is the primary extractor. Any error or an empty result sends
// the document to the local engine.
type AIExtractor interface {
	Extract(ctx context.Context, doc extraction.RawDocument) (extraction.ExtractionResult, error)
}

// TextAcquirer turns an uploaded file into text.
type TextAcquirer interface {
	Acquire(ctx context.Context, data []byte) (*textlayer.Text, error)
}

// Recorder receives per-document extraction metrics.
type Recorder interface {
	RecordExtraction(source, documentType, outcome string, elapsed time.Duration)
	RecordAIFallback(reason string)
}

type nopRecorder struct{}

func (nopRecorder) RecordExtraction(string, string, string, time.Duration) {}
func (nopRecorder) RecordAIFallback(string)                                 {}

const parserGapWarning = "no investigations found although the text contains numeric values"

type Service struct {
	repo        Repository
	blobs       blobstore.Store
	text        TextAcquirer
	engine      *extraction.Orchestrator
	ai          AIExtractor
	metrics     Recorder
	concurrency int
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(repo Repository, blobs blobstore.Store, text TextAcquirer, engine *extraction.Orchestrator, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		blobs:       blobs,
		text:        text,
		engine:      engine,
		metrics:     nopRecorder{},
		concurrency: 1,
		logger:      logger.With().Str("component", "records").Logger(),
		now:         time.Now,
	}
}

// WithAI installs the primary extractor. A nil extractor leaves the service
// on the local engine only.
func (s *Service) WithAI(ai AIExtractor) *Service {
	s.ai = ai
	return s
}

func (s *Service) WithMetrics(r Recorder) *Service {
	if r != nil {
		s.metrics = r
	}
	return s
}

// WithConcurrency bounds how many files of a batch are processed at once.
func (s *Service) WithConcurrency(n int) *Service {
	if n < 1 {
		n = 1
	}
	s.concurrency = n
	return s
}

// ExtractLocal runs the deterministic engine only.
func (s *Service) ExtractLocal(raw extraction.RawDocument) (extraction.Analysis, error) {
	return s.engine.Analyze(&raw)
}

// Extract produces a document without persisting it: AI first, local engine
// when the AI is absent, fails or finds nothing.
func (s *Service) Extract(ctx context.Context, raw extraction.RawDocument) *Document {
	doc := &Document{
		ID:        uuid.New(),
		FileName:  raw.Filename,
		CreatedAt: s.now().UTC(),
	}
	log := s.logger.With().Str("document_id", doc.ID.String()).Str("filename", raw.Filename).Logger()
	start := time.Now()

	if s.ai != nil {
		res, err := s.ai.Extract(ctx, raw)
		switch {
		case err != nil:
			s.metrics.RecordAIFallback("error")
			log.Warn().Err(err).Msg("ai extraction failed, using local engine")
		case res.Empty():
			s.metrics.RecordAIFallback("empty")
			log.Info().Msg("ai extraction returned no data, using local engine")
		default:
			res.Normalize()
			doc.Source = SourceAI
			doc.Type = extraction.Classify(raw.Text)
			doc.Result = res
			doc.Outcome = extraction.OutcomeOf(res)
			s.finish(log, doc, start)
			return doc
		}
	}

	// raw is never nil here, so Analyze cannot fail.
	a, _ := s.engine.Analyze(&raw)
	doc.Source = SourceFallback
	doc.Type = a.Type
	doc.Result = a.Result
	doc.Outcome = a.Outcome
	doc.LabDebug = a.Lab
	if len(a.Result.Investigations) == 0 && extraction.LooksNumeric(raw.Text) {
		doc.Warnings = append(doc.Warnings, parserGapWarning)
		ev := log.Warn().Str("document_type", string(a.Type))
		if a.Lab != nil {
			ev = ev.Int("total_lines", a.Lab.TotalLines).
				Int("candidate_lines", a.Lab.CandidateLines).
				Int("tokenize_failures", a.Lab.TokenizeFailures).
				Int("validation_failures", a.Lab.ValidationFailures)
		}
		ev.Msg("possible parser gap")
	}
	s.finish(log, doc, start)
	return doc
}

func (s *Service) finish(log zerolog.Logger, doc *Document, start time.Time) {
	elapsed := time.Since(start)
	s.metrics.RecordExtraction(string(doc.Source), string(doc.Type), string(doc.Outcome), elapsed)
	log.Info().
		Dur("elapsed", elapsed).
		Str("document_type", string(doc.Type)).
		Str("source", string(doc.Source)).
		Str("outcome", string(doc.Outcome)).
		Int("investigations", len(doc.Result.Investigations)).
		Int("imaging_reports", len(doc.Result.ImagingRadiologyReports)).
		Msg("document extracted")
}

// Ingest acquires the text of one file, stores the original, extracts and
// saves the document. The stored blob is removed again if saving fails.
func (s *Service) Ingest(ctx context.Context, up Upload) (*Document, error) {
	if up.FileName == "" {
		return nil, blobstore.ErrMissingFileName
	}
	text, err := s.text.Acquire(ctx, up.Data)
	if err != nil {
		return nil, fmt.Errorf("acquire text: %w", err)
	}

	meta, err := s.blobs.Put(ctx, blobstore.Metadata{
		FileName:    up.FileName,
		ContentType: text.MIME,
		CreatedBy:   up.CreatedBy,
	}, bytes.NewReader(up.Data))
	if err != nil {
		return nil, fmt.Errorf("store source: %w", err)
	}

	doc := s.Extract(ctx, extraction.RawDocument{Text: text.Content, Filename: up.FileName})
	doc.BlobID = meta.ID
	doc.MIME = text.MIME
	doc.Method = text.Method
	doc.Pages = text.Pages
	doc.CreatedBy = up.CreatedBy
	doc.Warnings = append(doc.Warnings, text.Warnings...)

	if err := s.repo.Save(ctx, doc); err != nil {
		if derr := s.blobs.Delete(ctx, meta.ID); derr != nil {
			s.logger.Error().Err(derr).Str("blob_id", meta.ID).Msg("failed to remove orphaned source")
		}
		return nil, fmt.Errorf("save document: %w", err)
	}
	return doc, nil
}

// IngestBatch ingests files concurrently. Each file succeeds or fails on its
// own; results keep the order of uploads.
func (s *Service) IngestBatch(ctx context.Context, uploads []Upload) []BatchItem {
	items := make([]BatchItem, len(uploads))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, up := range uploads {
		g.Go(func() error {
			items[i].FileName = up.FileName
			doc, err := s.Ingest(ctx, up)
			if err != nil {
				s.logger.Warn().Err(err).Str("filename", up.FileName).Msg("document ingestion failed")
				items[i].Error = err.Error()
				return nil
			}
			items[i].Document = doc
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Document, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Source opens the original file a document was extracted from.
func (s *Service) Source(ctx context.Context, id uuid.UUID) (io.ReadCloser, *blobstore.Metadata, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if doc.BlobID == "" {
		return nil, nil, blobstore.ErrBlobNotFound
	}
	return s.blobs.Get(ctx, doc.BlobID)
}

// Delete removes the document and its source file. A source that is already
// gone is not an error.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if doc.BlobID != "" {
		if err := s.blobs.Delete(ctx, doc.BlobID); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
			return fmt.Errorf("delete source: %w", err)
		}
	}
	return nil
}

// Package aiextract is the primary extractor: a Gemini model on Vertex AI
// asked to return the ExtractionResult JSON directly. Callers fall back to
// the local heuristics whenever it fails.
package aiextract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"

	"github.com/medrec/medrec/internal/extraction"
)

var ErrEmptyResponse = errors.New("model returned no content")

type Config struct {
	ProjectID string
	Region    string
	Model     string
	Timeout   time.Duration
}

// generator is the part of *genai.GenerativeModel the client uses.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Client struct {
	extractor generator
	reader    generator
	timeout   time.Duration
	now       func() time.Time
	base      *genai.Client
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("aiextract: project and region are required")
	}
	base, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	extractor := base.GenerativeModel(cfg.Model)
	extractor.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(extractorSystemPrompt)}}
	extractor.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   resultSchema,
		Temperature:      genai.Ptr[float32](0),
	}
	extractor.SafetySettings = permissiveSafety

	reader := base.GenerativeModel(cfg.Model)
	reader.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(readerSystemPrompt)}}
	reader.GenerationConfig = genai.GenerationConfig{Temperature: genai.Ptr[float32](0)}
	reader.SafetySettings = permissiveSafety

	return &Client{extractor: extractor, reader: reader, timeout: cfg.Timeout, now: time.Now, base: base}, nil
}

// Medical text routinely trips the default filters.
var permissiveSafety = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
}

func (c *Client) Close() error {
	if c.base != nil {
		return c.base.Close()
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// Extract asks the model for a structured result and conforms it to the
// same invariants the local engine guarantees.
func (c *Client) Extract(ctx context.Context, doc extraction.RawDocument) (extraction.ExtractionResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	prompt := fmt.Sprintf(extractorUserPrompt, doc.Filename, doc.Text)
	resp, err := c.extractor.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return extraction.NewExtractionResult(), fmt.Errorf("generate content: %w", err)
	}
	raw, err := responseText(resp)
	if err != nil {
		return extraction.NewExtractionResult(), err
	}
	return decodeResult(raw, c.now().Format(extraction.DateLayout))
}

// RecognizeText transcribes a scanned page or image-only PDF, keeping table
// columns separated by at least two spaces.
func (c *Client) RecognizeText(ctx context.Context, data []byte, mimeType string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.reader.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text(readerUserPrompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// decodeResult parses model JSON, tolerating a Markdown code fence. Missing
// or malformed dates become today.
func decodeResult(raw, today string) (extraction.ExtractionResult, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	}

	var res extraction.ExtractionResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return extraction.NewExtractionResult(), fmt.Errorf("decode model output: %w", err)
	}
	return conform(res, today), nil
}

// conform drops nameless entries and non-numeric results, closes the flag
// set, dedups the way the local extractors do and fills imaging defaults.
// Pending entries are ordered tests from a bill and keep the pending result.
func conform(in extraction.ExtractionResult, today string) extraction.ExtractionResult {
	out := extraction.NewExtractionResult()
	out.OtherClinicalData = strings.TrimSpace(in.OtherClinicalData)

	seen := make(map[string]bool)
	for _, inv := range in.Investigations {
		inv.InvestigationName = strings.TrimSpace(inv.InvestigationName)
		if inv.InvestigationName == "" {
			continue
		}
		inv.Flag = extraction.ParseFlag(string(inv.Flag))
		if _, err := time.Parse(extraction.DateLayout, inv.ResultTimestamp); err != nil {
			inv.ResultTimestamp = today
		}

		var key string
		if inv.Flag == extraction.FlagPending {
			inv.Result = extraction.PendingResult
			key = strings.ToLower(inv.InvestigationName) + "_" + inv.ResultTimestamp
		} else {
			value, ok := extraction.NormalizeLabValue(inv.Result)
			if !ok {
				continue
			}
			inv.Result = value
			key = strings.ToLower(inv.InvestigationName) + "_" + value
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out.Investigations = append(out.Investigations, inv)
	}

	for _, r := range in.ImagingRadiologyReports {
		r.BodyPart = orDefault(r.BodyPart, extraction.NotSpecified)
		r.ScanType = orDefault(r.ScanType, extraction.NotSpecified)
		r.Findings = orDefault(r.Findings, extraction.NoFindingsDocumented)
		r.Impression = orDefault(r.Impression, extraction.NoImpressionDocumented)
		if _, err := time.Parse(extraction.DateLayout, r.ResultTimestamp); err != nil {
			r.ResultTimestamp = today
		}
		out.ImagingRadiologyReports = append(out.ImagingRadiologyReports, r)
	}
	return out
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

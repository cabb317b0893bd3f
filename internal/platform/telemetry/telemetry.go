// Package telemetry keeps in-process HTTP and extraction metrics and serves
// them in the Prometheus text exposition format.
package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

var (
	durationBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	extractionBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60}
)

// histogram stores non-cumulative bucket counts; export accumulates them.
type histogram struct {
	boundaries   []float64
	mu           sync.Mutex
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{boundaries: boundaries, bucketCounts: make([]int64, len(boundaries))}
}

func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	for {
		old := atomic.LoadUint64(&h.sum)
		if atomic.CompareAndSwapUint64(&h.sum, old, math.Float64bits(math.Float64frombits(old)+v)) {
			break
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) Count() int64 { return atomic.LoadInt64(&h.count) }

func (h *histogram) Sum() float64 { return math.Float64frombits(atomic.LoadUint64(&h.sum)) }

func (h *histogram) cumulative() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int64, len(h.bucketCounts))
	var running int64
	for i, c := range h.bucketCounts {
		running += c
		out[i] = running
	}
	return out
}

// family is a set of series sharing a metric name, keyed by rendered labels.
type family struct {
	mu         sync.RWMutex
	boundaries []float64
	hists      map[string]*histogram
	counters   map[string]*int64
}

func newFamily(boundaries []float64) *family {
	return &family{boundaries: boundaries, hists: map[string]*histogram{}, counters: map[string]*int64{}}
}

func (f *family) histogram(labels string) *histogram {
	f.mu.RLock()
	h, ok := f.hists[labels]
	f.mu.RUnlock()
	if ok {
		return h
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok = f.hists[labels]; !ok {
		h = newHistogram(f.boundaries)
		f.hists[labels] = h
	}
	return h
}

func (f *family) inc(labels string) {
	f.mu.RLock()
	p, ok := f.counters[labels]
	f.mu.RUnlock()
	if !ok {
		f.mu.Lock()
		if p, ok = f.counters[labels]; !ok {
			p = new(int64)
			f.counters[labels] = p
		}
		f.mu.Unlock()
	}
	atomic.AddInt64(p, 1)
}

func (f *family) counter(labels string) int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if p, ok := f.counters[labels]; ok {
		return atomic.LoadInt64(p)
	}
	return 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// labelSet renders name/value pairs in the exposition format.
func labelSet(pairs ...string) string {
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, fmt.Sprintf("%s=%q", pairs[i], pairs[i+1]))
	}
	return strings.Join(parts, ",")
}

// Provider owns every metric the service exports. The zero value is not
// usable; call New.
type Provider struct {
	active      int64
	requests    *family
	extractions *family
	extractTime *family
	aiFallbacks *family
}

func New() *Provider {
	return &Provider{
		requests:    newFamily(durationBuckets),
		extractions: newFamily(nil),
		extractTime: newFamily(extractionBuckets),
		aiFallbacks: newFamily(nil),
	}
}

// Middleware records request duration by method, route and status.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&p.active, 1)
			defer atomic.AddInt64(&p.active, -1)

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			labels := labelSet("method", c.Request().Method, "route", route, "status_code", strconv.Itoa(status))
			p.requests.histogram(labels).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// RecordExtraction counts one extracted document.
func (p *Provider) RecordExtraction(source, documentType, outcome string, elapsed time.Duration) {
	p.extractions.inc(labelSet("source", source, "document_type", documentType, "outcome", outcome))
	p.extractTime.histogram(labelSet("source", source)).Observe(elapsed.Seconds())
}

// RecordAIFallback counts a document the AI extractor could not handle.
func (p *Provider) RecordAIFallback(reason string) {
	p.aiFallbacks.inc(labelSet("reason", reason))
}

// ExtractionCount returns the counter for one label combination.
func (p *Provider) ExtractionCount(source, documentType, outcome string) int64 {
	return p.extractions.counter(labelSet("source", source, "document_type", documentType, "outcome", outcome))
}

// Handler serves GET /metrics.
func (p *Provider) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		writeHistograms(&b, "http_server_request_duration_seconds", "Duration of HTTP requests in seconds.", p.requests)

		b.WriteString("# HELP http_server_active_requests Number of in-flight HTTP requests.\n")
		b.WriteString("# TYPE http_server_active_requests gauge\n")
		fmt.Fprintf(&b, "http_server_active_requests %d\n\n", atomic.LoadInt64(&p.active))

		writeCounters(&b, "medrec_documents_extracted_total", "Documents extracted by source, type and outcome.", p.extractions)
		writeHistograms(&b, "medrec_extraction_duration_seconds", "Time spent extracting one document.", p.extractTime)
		writeCounters(&b, "medrec_ai_fallbacks_total", "Documents sent to the local engine after the AI extractor failed or found nothing.", p.aiFallbacks)

		return c.Blob(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
	}
}

func writeCounters(b *strings.Builder, name, help string, f *family) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
	f.mu.RLock()
	for _, labels := range sortedKeys(f.counters) {
		fmt.Fprintf(b, "%s{%s} %d\n", name, labels, atomic.LoadInt64(f.counters[labels]))
	}
	f.mu.RUnlock()
	b.WriteByte('\n')
}

func writeHistograms(b *strings.Builder, name, help string, f *family) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s histogram\n", name, help, name)
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, labels := range sortedKeys(f.hists) {
		h := f.hists[labels]
		cum := h.cumulative()
		for i, le := range h.boundaries {
			fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, le, cum[i])
		}
		fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, h.Count())
		fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, h.Sum())
		fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, h.Count())
	}
	b.WriteByte('\n')
}

package textlayer

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// pageCount validates the PDF structure in relaxed mode and counts pages.
func pageCount(data []byte) (int, error) {
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// pdfTextLayer reads every page row by row so table columns stay apart.
// The reader panics on some malformed files; that is reported as an error.
func pdfTextLayer(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, err
	}

	pages = r.NumPage()
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return "", pages, fmt.Errorf("page %d: %w", i, err)
		}
		// Rows come bottom-up in PDF space.
		sort.SliceStable(rows, func(a, b int) bool { return rows[a].Position > rows[b].Position })
		for _, row := range rows {
			if line := layoutRow(row.Content); line != "" {
				b.WriteString(line)
				b.WriteByte('\n')
			}
		}
	}
	return b.String(), pages, nil
}

// Gaps are measured in multiples of the font size.
const (
	wordGap         = 0.25
	columnGap       = 1.5
	defaultFontSize = 10
	// average glyph advance as a fraction of the font size
	glyphWidth = 0.5
)

// layoutRow joins the text runs of one row. A small gap becomes one space,
// a wide gap becomes two so the lab tokenizer sees a column break. Runs read
// by row carry no width or size, so both are estimated when missing.
func layoutRow(texts []pdf.Text) string {
	if len(texts) == 0 {
		return ""
	}
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].X < sorted[b].X })

	var b strings.Builder
	var end float64
	for i, t := range sorted {
		size := t.FontSize
		if size <= 0 {
			size = defaultFontSize
		}
		if i > 0 {
			switch gap := (t.X - end) / size; {
			case gap > columnGap:
				b.WriteString("  ")
			case gap > wordGap:
				b.WriteByte(' ')
			}
		}
		b.WriteString(t.S)
		w := t.W
		if w <= 0 {
			w = glyphWidth * size * float64(utf8.RuneCountInString(t.S))
		}
		end = t.X + w
	}
	return strings.TrimRight(b.String(), " ")
}

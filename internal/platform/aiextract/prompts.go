package aiextract

import "cloud.google.com/go/vertexai/genai"

const extractorSystemPrompt = "You extract structured data from medical documents: laboratory reports, radiology reports and hospital bills. You only report what the document states. You never invent values."

const extractorUserPrompt = `Extract the structured medical data from the document below.

Rules:
- investigations: one entry per laboratory test. result is the value exactly as printed, without thousands separators. flag is one of Normal, High, Low, BorderlineHigh, BorderlineLow, Pending. Use the printed flag when present; otherwise compare the value with the reference range.
- Hospital bills list tests that were ordered, not their results. For those, result is "Pending/Not Available", flag is Pending, and note states the order date, quantity, rate and amount.
- result_timestamp is the collection, report or order date as YYYY-MM-DD.
- imaging_radiology_reports: at most one entry per study with body_part, scan_type, findings and impression.
- other_clinical_data: patient demographics, clinical history, interpretation, notes and methods as "Label: value" blocks separated by blank lines.
- Leave arrays empty when the document has no such data.

Filename: %s

Document text:
%s`

const readerSystemPrompt = "You transcribe scanned medical documents to plain text."

const readerUserPrompt = `Transcribe all text in this document in reading order. Reproduce tables row by row, one row per line, with at least two spaces between columns. Output only the transcription.`

var resultSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"investigations": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"investigation_name": {Type: genai.TypeString},
					"result":             {Type: genai.TypeString},
					"unit":               {Type: genai.TypeString},
					"reference_range":    {Type: genai.TypeString},
					"flag": {
						Type: genai.TypeString,
						Enum: []string{"Normal", "High", "Low", "BorderlineHigh", "BorderlineLow", "Pending"},
					},
					"result_timestamp": {Type: genai.TypeString},
					"note":             {Type: genai.TypeString},
				},
				Required: []string{"investigation_name", "result", "unit", "reference_range", "flag", "result_timestamp"},
			},
		},
		"imaging_radiology_reports": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"body_part":        {Type: genai.TypeString},
					"scan_type":        {Type: genai.TypeString},
					"findings":         {Type: genai.TypeString},
					"impression":       {Type: genai.TypeString},
					"result_timestamp": {Type: genai.TypeString},
				},
				Required: []string{"body_part", "scan_type", "findings", "impression", "result_timestamp"},
			},
		},
		"other_clinical_data": {Type: genai.TypeString},
	},
	Required: []string{"investigations", "imaging_radiology_reports", "other_clinical_data"},
}

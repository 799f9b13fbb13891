package model

import "time"

// ResultsExport is the top-level JSON structure for result export.
type ResultsExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Count      int             `json:"count"`
	Results    []StudentResult `json:"results"`
}

// StudentResult is one finished quiz with its owner for export.
type StudentResult struct {
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Attempt     int        `json:"attempt"`
	Percentage  float64    `json:"percentage"`
	Result      QuizResult `json:"result"`
}

// ImportReport summarizes loading a question file.
type ImportReport struct {
	Source   string `json:"source"`
	Imported int    `json:"imported"`
	Rejected int    `json:"rejected"`
	Skipped  bool   `json:"skipped,omitempty"`
}

// BankSummary describes the stored questions matching a filter.
type BankSummary struct {
	Questions int      `json:"questions"`
	Topics    []string `json:"topics"`
	LastSeed  string   `json:"last_seed,omitempty"`
}

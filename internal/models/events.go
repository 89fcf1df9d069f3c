package models

// RowCoded is published when a record produced an extraction.
// ICD fields are nil when matching was skipped or failed.
type RowCoded struct {
	EventType   string    `json:"eventType"`
	RunID       string    `json:"runId"`
	RowIndex    int       `json:"rowIndex"`
	Timestamp   int64     `json:"timestamp"`
	Row         OutputRow `json:"row"`
	MatchStatus string    `json:"matchStatus"` // matched, skipped, failed
}

// RowFailed is published when the extraction stage failed for a record.
type RowFailed struct {
	EventType        string `json:"eventType"`
	RunID            string `json:"runId"`
	RowIndex         int    `json:"rowIndex"`
	Timestamp        int64  `json:"timestamp"`
	MedicalSpecialty string `json:"medicalSpecialty"`
	Stage            string `json:"stage"`
	Error            string `json:"error"`
}

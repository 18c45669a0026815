package models

import "time"

// PipelineRequest is one audited call into the analysis pipeline.
type PipelineRequest struct {
	TraceID         string
	Endpoint        string
	CallerID        string
	TextFingerprint string
	Language        string
	Sector          string
	BuildID         string
	StatusCode      int
	LatencyMS       int64
	CreatedAt       time.Time
	Stages          []StageRecord
}

// StageRecord tells which path a generative stage took for a request.
type StageRecord struct {
	Stage      string
	Provenance string
	Outcome    string
}

type ProvenanceCount struct {
	Stage      string `json:"stage"`
	Provenance string `json:"provenance"`
	Outcome    string `json:"outcome"`
	Count      int    `json:"count"`
}

type AuditSummary struct {
	Requests     int               `json:"requests"`
	AvgLatencyMS float64           `json:"avgLatencyMs"`
	BySector     map[string]int    `json:"bySector"`
	Provenance   []ProvenanceCount `json:"provenance"`
}

package models

import (
	"time"
)

// AnswerSource identifies where an answer came from
type AnswerSource string

const (
	SourceLocal    AnswerSource = "local"
	SourceExternal AnswerSource = "external"
)

// QuestionRequest is the inbound ask-question payload
type QuestionRequest struct {
	Collection string `json:"collection,omitempty"`
	Question   string `json:"question"`
}

// QuestionResponse is the answer returned to the caller
type QuestionResponse struct {
	Source          AnswerSource `json:"source"`
	MatchedQuestion string       `json:"matched_question,omitempty"`
	Answer          string       `json:"answer"`
	SimilarityScore *float64     `json:"similarity_score,omitempty"`
}

// CreateEntryRequest is the inbound payload for adding a knowledge base entry
type CreateEntryRequest struct {
	Collection string `json:"collection,omitempty"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
}

// QueryRecord is the fire-and-forget record emitted for every answered
// question, consumed offline for threshold tuning.
type QueryRecord struct {
	ID              string       `json:"id"`
	Collection      string       `json:"collection"`
	Question        string       `json:"question"`
	Source          AnswerSource `json:"source"`
	MatchedQuestion string       `json:"matched_question,omitempty"`
	SimilarityScore *float64     `json:"similarity_score,omitempty"`
	LatencyMS       int64        `json:"latency_ms"`
	Timestamp       time.Time    `json:"timestamp"`
}

// JobEvent is emitted on embedding job state transitions
type JobEvent struct {
	JobID          string    `json:"job_id"`
	Collection     string    `json:"collection"`
	Status         JobStatus `json:"status"`
	ProcessedCount int       `json:"processed_count"`
	FailedCount    int       `json:"failed_count"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

package models

import (
	"time"
)

// DefaultCollection is the collection entries belong to when none is given.
const DefaultCollection = "default"

// Entry represents a question/answer pair in the knowledge base
type Entry struct {
	ID         string     `json:"id" db:"id"`
	Collection string     `json:"collection" db:"collection"`
	Question   string     `json:"question" db:"question"`
	Answer     string     `json:"answer" db:"answer"`
	Embedded   bool       `json:"embedded" db:"embedded"`
	EmbeddedAt *time.Time `json:"embedded_at,omitempty" db:"embedded_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// EntryFilter represents a filter for listing entries
type EntryFilter struct {
	Collection string `json:"collection,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// Candidate is a nearest-neighbor result returned by the vector store.
// Distance is the store's native cosine distance, lower is closer.
type Candidate struct {
	Entry    Entry   `json:"entry"`
	Distance float64 `json:"distance"`
}

// CollectionStats summarizes embedding coverage of the knowledge base
type CollectionStats struct {
	TotalEntries    int      `json:"total_entries"`
	EmbeddedEntries int      `json:"embedded_entries"`
	Collections     []string `json:"collections"`
}

package domain

import "time"

type (
	// ProductRecord is a single catalog entry keyed by the provider SKU.
	// Attributes are passed through from the provider untouched.
	ProductRecord struct {
		SKU        string
		Attributes map[string]any
		SyncedAt   time.Time
	}

	Credentials struct {
		Username string
		APIKey   string
	}

	SyncStatus struct {
		LastSync     time.Time
		ProductCount int
	}

	SyncResult struct {
		RunID        string    `json:"run_id"`
		Success      bool      `json:"success"`
		ProductCount int       `json:"product_count"`
		Error        string    `json:"error,omitempty"`
		StartedAt    time.Time `json:"started_at"`
		FinishedAt   time.Time `json:"finished_at"`
		Shared       bool      `json:"shared,omitempty"`
	}
)

func (c Credentials) Complete() bool {
	return c.Username != "" && c.APIKey != ""
}

package api

import (
	"time"

	"waveline/internal/ingest"
	"waveline/internal/ledger"
)

type uploadResponse struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	Fingerprint      string `json:"fingerprint"`
	OriginalLocation string `json:"original_location"`
	Cached           bool   `json:"cached"`
}

func uploadView(admission ingest.Admission) uploadResponse {
	rec := admission.Record
	return uploadResponse{
		ID:               rec.ID,
		Status:           string(rec.Status),
		Fingerprint:      rec.ContentHash,
		OriginalLocation: rec.OriginalKey,
		Cached:           admission.Cached,
	}
}

type recordResponse struct {
	ID               string            `json:"id"`
	Fingerprint      string            `json:"fingerprint"`
	Source           string            `json:"source"`
	ExternalID       string            `json:"external_id,omitempty"`
	Status           string            `json:"status"`
	OriginalLocation string            `json:"original_location"`
	Derived          map[string]string `json:"derived,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	Attempts         int               `json:"attempts"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func recordView(rec *ledger.Record) recordResponse {
	view := recordResponse{
		ID:               rec.ID,
		Fingerprint:      rec.ContentHash,
		Source:           rec.Source,
		ExternalID:       rec.ExternalRef,
		Status:           string(rec.Status),
		OriginalLocation: rec.OriginalKey,
		ErrorMessage:     rec.ErrorMessage,
		Attempts:         rec.Attempts,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
	if len(rec.Derived) > 0 {
		view.Derived = make(map[string]string, len(rec.Derived))
		for format, key := range rec.Derived {
			view.Derived[string(format)] = key
		}
	}
	return view
}

type healthView struct {
	Status string           `json:"status"`
	Ledger ledgerHealthView `json:"ledger"`
	Queue  queueHealthView  `json:"queue"`
}

type ledgerHealthView struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type queueHealthView struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Package action is the boundary between user triggers (CLI commands, HTTP
// routes) and the extraction and delivery pipeline. Every operation returns
// a Status; errors never escape as panics.
package action

import (
	"stockbrief/internal/cache"
	"stockbrief/internal/deliver"
	"stockbrief/internal/extract"
	"stockbrief/internal/stock"
)

// Kind classifies a Status for display.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Status is the result of one user action.
type Status struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`

	Record      *stock.StockRecord `json:"record,omitempty"`
	Missing     []string           `json:"missingFields,omitempty"`
	Partial     *stock.StockRecord `json:"partial,omitempty"`
	Outcome     *deliver.Outcome   `json:"outcome,omitempty"`
	Info        *extract.BasicInfo `json:"info,omitempty"`
	Preview     string             `json:"preview,omitempty"`
	Preferences *cache.Preferences `json:"preferences,omitempty"`
	// Cached is set when a quick look refreshed the stored record.
	Cached bool `json:"cached,omitempty"`

	// Err is the underlying failure, kept for callers that map it to exit
	// codes or HTTP statuses.
	Err error `json:"-"`
}

// OK reports whether the action did not fail.
func (s Status) OK() bool { return s.Kind != KindError }

func success(msg string) Status { return Status{Kind: KindSuccess, Message: msg} }

func info(msg string) Status { return Status{Kind: KindInfo, Message: msg} }

func failure(msg string, err error) Status {
	return Status{Kind: KindError, Message: msg, Err: err}
}

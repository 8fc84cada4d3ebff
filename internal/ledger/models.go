package ledger

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an ingestion record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Format names a derived audio encoding produced from the original source.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
)

// DerivedFormats returns the full set of derived formats every completed
// record must carry.
func DerivedFormats() []Format {
	return []Format{FormatMP3, FormatWAV}
}

// ParseFormat converts a string into a known derived Format.
func ParseFormat(value string) (Format, bool) {
	normalized := Format(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case FormatMP3, FormatWAV:
		return normalized, true
	}
	return "", false
}

// Record is the unit of business state tracked from admission to terminal
// outcome.
type Record struct {
	ID           string
	ContentHash  string
	Source       string
	ExternalRef  string
	OriginalKey  string
	Derived      map[Format]string
	Status       Status
	ErrorMessage string
	Attempts     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the status admits no further transition.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DerivedKey returns the stored location for a derived format, if produced.
func (r *Record) DerivedKey(format Format) (string, bool) {
	if r.Derived == nil {
		return "", false
	}
	key, ok := r.Derived[format]
	return key, ok && key != ""
}

// HealthSummary describes aggregated record counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Pending   int
	Completed int
	Failed    int
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a thumbnail generation job.
type Status string

const (
	StatusCreated    Status = "Created"
	StatusGenerating Status = "Generating"
	StatusComplete   Status = "Complete"
	StatusFailed     Status = "Failed"
)

// FailureReason classifies why a job ended in StatusFailed.
type FailureReason string

const (
	ReasonProviderTimeout         FailureReason = "ProviderTimeout"
	ReasonProviderUnavailable     FailureReason = "ProviderUnavailable"
	ReasonProviderInvalidResponse FailureReason = "ProviderInvalidResponse"
	ReasonOrphaned                FailureReason = "Orphaned"
	ReasonAssetUploadFailed       FailureReason = "AssetUploadFailed"
)

// Defaults applied to optional styling fields on submit.
const (
	DefaultStyle       = "modern"
	DefaultAspectRatio = "16:9"
	DefaultColorScheme = "vibrant"
)

var transitions = map[Status][]Status{
	StatusCreated:    {StatusGenerating},
	StatusGenerating: {StatusComplete, StatusFailed},
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusGenerating, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Thumbnail is one generation request and its tracked outcome.
type Thumbnail struct {
	ID            uuid.UUID `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Title         string    `json:"title"`
	Style         string    `json:"style"`
	AspectRatio   string    `json:"aspect_ratio"`
	ColorScheme   string    `json:"color_scheme"`
	TextOverlay   bool      `json:"text_overlay"`
	PromptText    string    `json:"prompt_text"`
	Status        Status    `json:"status"`
	ResultContent string    `json:"result_content,omitempty"`
	ResultURL     string    `json:"result_url,omitempty"`
	ErrorDetail   string    `json:"error_detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CheckInvariants verifies that the result and error fields agree with Status.
func (t *Thumbnail) CheckInvariants() error {
	if !t.Status.Valid() {
		return &InvariantError{Field: "status", Reason: "unknown status " + string(t.Status)}
	}
	hasResult := t.ResultContent != "" || t.ResultURL != ""
	if t.Status == StatusComplete && t.ResultContent == "" {
		return &InvariantError{Field: "result_content", Reason: "required when status is Complete"}
	}
	if t.Status != StatusComplete && hasResult {
		return &InvariantError{Field: "result_content", Reason: "must be empty unless status is Complete"}
	}
	if t.Status == StatusFailed && t.ErrorDetail == "" {
		return &InvariantError{Field: "error_detail", Reason: "required when status is Failed"}
	}
	if t.Status != StatusFailed && t.ErrorDetail != "" {
		return &InvariantError{Field: "error_detail", Reason: "must be empty unless status is Failed"}
	}
	return nil
}

// InvariantError reports a record whose fields contradict its status.
type InvariantError struct {
	Field  string
	Reason string
}

func (e *InvariantError) Error() string {
	return "invalid thumbnail record: " + e.Field + " " + e.Reason
}

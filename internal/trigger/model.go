package trigger

import (
	"time"

	"transcript-backend/internal/jobs"
	"transcript-backend/internal/transcripts"
)

// Arrival signals that a company's transcript for a period is available.
type Arrival struct {
	CompanyID   string    `json:"companyId"`
	Period      string    `json:"period"`
	DocumentRef string    `json:"documentRef"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

// Outcome reports what an arrival produced.
type Outcome struct {
	Transcript transcripts.Transcript `json:"transcript"`
	Created    []jobs.Job             `json:"created"`
	Duplicates int                    `json:"duplicates"`
}

// Dead-letter reasons.
const (
	ReasonUnknownCompany = "unknown_company"
	ReasonMalformed      = "malformed"
)

// DeadLetter is an arrival that could not be processed and will not be retried.
type DeadLetter struct {
	ID        string    `json:"id"`
	Arrival   Arrival   `json:"arrival"`
	Reason    string    `json:"reason"`
	Error     string    `json:"error"`
	CreatedAt time.Time `json:"createdAt"`
}

// RunRequest asks for a manual run against a group or company.
type RunRequest struct {
	OrgID    string
	TargetID string
	Period   string
	Nonce    string
}

package jobs

import (
	"time"

	"transcript-backend/internal/shared/scope"
)

// Status is the lifecycle state of an analysis job.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusDead      Status = "Dead"
	StatusCanceled  Status = "Canceled"
)

// Trigger records which path created a job.
type Trigger string

const (
	TriggerAuto   Trigger = "auto"
	TriggerManual Trigger = "manual"
)

const DefaultMaxAttempts = 3

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusCanceled, StatusDead},
	StatusRunning: {StatusCompleted, StatusFailed, StatusDead},
	StatusFailed:  {StatusRunning, StatusDead},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// TranscriptRef points at one transcript a job analyzes.
type TranscriptRef struct {
	CompanyID   string `json:"companyId"`
	Period      string `json:"period"`
	DocumentRef string `json:"documentRef"`
}

// Job is one analysis of one prompt over one or more transcripts.
type Job struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotencyKey"`
	OrgID          string          `json:"orgId"`
	Target         scope.Scope     `json:"targetScope"`
	TargetID       string          `json:"targetId"`
	CompanyID      string          `json:"companyId,omitempty"`
	GroupID        string          `json:"groupId,omitempty"`
	Period         string          `json:"period"`
	PromptID       string          `json:"promptId"`
	PromptRef      string          `json:"promptRef"`
	PromptSnapshot string          `json:"promptSnapshot"`
	TranscriptRefs []TranscriptRef `json:"transcriptRefs"`
	Trigger        Trigger         `json:"trigger"`
	Nonce          string          `json:"nonce,omitempty"`
	Status         Status          `json:"status"`
	AttemptCount   int             `json:"attemptCount"`
	MaxAttempts    int             `json:"maxAttempts"`
	AdmittedPeriod string          `json:"admittedPeriod,omitempty"`
	NextAttemptAt  *time.Time      `json:"nextAttemptAt,omitempty"`
	OutputRef      string          `json:"outputRef,omitempty"`
	ErrorCode      string          `json:"errorCode,omitempty"`
	LastError      string          `json:"lastError,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
}

// Admitted reports whether the job has already consumed quota.
func (j Job) Admitted() bool {
	return j.AdmittedPeriod != ""
}

// Request describes a job the trigger engine wants to exist.
type Request struct {
	OrgID          string
	Target         scope.Scope
	TargetID       string
	CompanyID      string
	GroupID        string
	Period         string
	PromptID       string
	PromptRef      string
	PromptText     string
	TranscriptRefs []TranscriptRef
	Trigger        Trigger
	Nonce          string
}

// Subject is the id the idempotency key is built around: the company for
// company-scoped data, the group for a whole-group run.
func (r Request) Subject() string {
	if r.CompanyID != "" {
		return r.CompanyID
	}
	return r.GroupID
}

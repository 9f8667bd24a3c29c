package distribution

import "time"

// Dispatch statuses.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Dispatch records the single email delivery attempt set for one job.
type Dispatch struct {
	JobID      string     `json:"jobId"`
	Recipients []string   `json:"recipients"`
	Subject    string     `json:"subject"`
	Status     string     `json:"status"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"lastError,omitempty"`
	SentAt     *time.Time `json:"sentAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Message is one email handed to a Sender.
type Message struct {
	To      []string
	Subject string
	Body    string
}

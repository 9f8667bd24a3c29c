package transcripts

import "time"

// Transcript records that a company's transcript for a period is available.
// The first arrival for (company, period) wins; later duplicates are ignored.
type Transcript struct {
	CompanyID   string    `json:"companyId"`
	Period      string    `json:"period"`
	DocumentRef string    `json:"documentRef"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

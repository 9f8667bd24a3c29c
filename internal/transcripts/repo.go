package transcripts

import "context"

// Repo persists transcript records.
type Repo interface {
	// Record stores t unless (company, period) already exists; it returns the stored
	// record and whether this call created it.
	Record(ctx context.Context, t Transcript) (Transcript, bool, error)
	Get(ctx context.Context, companyID, period string) (Transcript, error)
	ListByCompany(ctx context.Context, companyID string) ([]Transcript, error)
	// ListForPeriod returns the transcripts of the given companies for one period.
	ListForPeriod(ctx context.Context, companyIDs []string, period string) ([]Transcript, error)
}

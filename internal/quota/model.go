package quota

import "time"

// Decision is the outcome of an admission check.
type Decision string

const (
	Admitted Decision = "Admitted"
	Deferred Decision = "Deferred"
	Rejected Decision = "Rejected"
)

// Policy decides what happens to a job once the org is at its limit.
type Policy string

const (
	PolicyDefer  Policy = "defer"
	PolicyReject Policy = "reject"
)

// Counter is the number of jobs admitted for an org in one quota period.
type Counter struct {
	OrgID     string    `json:"orgId"`
	PeriodID  string    `json:"periodId"`
	Count     int       `json:"count"`
	Limit     int       `json:"limit"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Result reports an admission decision together with the counter it was taken against.
type Result struct {
	Decision Decision `json:"decision"`
	PeriodID string   `json:"periodId"`
	Counter  Counter  `json:"counter"`
}

// Release is a deferred job admitted after rollover.
type Release struct {
	OrgID    string
	JobID    string
	PeriodID string
}

// Usage is the org's quota view served over HTTP.
type Usage struct {
	OrgID     string `json:"orgId"`
	Plan      string `json:"plan"`
	Period    string `json:"period"`
	PeriodID  string `json:"periodId"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Deferred  int    `json:"deferred"`
	Policy    Policy `json:"policy"`
}

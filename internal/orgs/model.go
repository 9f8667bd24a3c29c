package orgs

import (
	"strings"
	"time"
)

// Period values for a plan's quota window.
const (
	PeriodDaily   = "daily"
	PeriodMonthly = "monthly"
)

// Plan bounds how many analysis jobs an organization may dispatch per period.
type Plan struct {
	Name     string `yaml:"name" json:"name"`
	Period   string `yaml:"period" json:"period"`
	JobLimit int    `yaml:"job_limit" json:"jobLimit"`
}

// PeriodID returns the quota window identifier containing t.
func (p Plan) PeriodID(t time.Time) string {
	t = t.UTC()
	if strings.EqualFold(p.Period, PeriodDaily) {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01")
}

// Organization is a tenant with a plan and default result recipients.
type Organization struct {
	ID                string   `yaml:"id" json:"id"`
	Name              string   `yaml:"name" json:"name"`
	Plan              Plan     `yaml:"plan" json:"plan"`
	DefaultRecipients []string `yaml:"default_recipients" json:"defaultRecipients"`
}

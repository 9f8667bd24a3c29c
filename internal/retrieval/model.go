package retrieval

import (
	"time"

	"transcript-backend/internal/shared/scope"
)

const (
	MinK             = 1
	MaxK             = 10
	DefaultK         = 4
	MaxSectorOutputs = 10
)

// Turn is one question and its answer, appended in order and never rewritten.
type Turn struct {
	Seq      int       `json:"seq"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"askedAt"`
}

// Session is an ask conversation bound to one company or group.
type Session struct {
	ID                   string      `json:"id"`
	OrgID                string      `json:"orgId"`
	Scope                scope.Scope `json:"scope"`
	TargetID             string      `json:"targetId"`
	K                    int         `json:"k"`
	IncludeSectorOutputs bool        `json:"includeSectorOutputs"`
	Turns                []Turn      `json:"turns"`
	CreatedAt            time.Time   `json:"createdAt"`
}

// Query selects the context for a question.
type Query struct {
	OrgID                string
	Scope                scope.Scope
	TargetID             string
	K                    int
	IncludeSectorOutputs bool
}

// Excerpt is a transcript included in a context bundle.
type Excerpt struct {
	CompanyID   string `json:"companyId"`
	Company     string `json:"company"`
	Period      string `json:"period"`
	DocumentRef string `json:"documentRef"`
	Text        string `json:"-"`
}

// SectorOutput is a completed sector analysis that mentions the company.
type SectorOutput struct {
	JobID   string `json:"jobId"`
	GroupID string `json:"groupId"`
	Period  string `json:"period"`
	Text    string `json:"-"`
}

// Bundle is the context handed to the model for one question.
type Bundle struct {
	Scope         scope.Scope    `json:"scope"`
	TargetID      string         `json:"targetId"`
	Name          string         `json:"name"`
	Transcripts   []Excerpt      `json:"transcripts"`
	SectorOutputs []SectorOutput `json:"sectorOutputs"`
	History       []Turn         `json:"history"`
}

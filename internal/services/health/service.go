package health

import (
	"context"
	"database/sql"
	"time"
)

const pingTimeout = 2 * time.Second

// Service reports process readiness.
type Service struct {
	DB *sql.DB
}

// NewService constructs a health service. db may be nil for in-memory mode.
func NewService(db *sql.DB) *Service {
	return &Service{DB: db}
}

// Status returns the health payload and whether every dependency is reachable.
func (s *Service) Status(ctx context.Context) (map[string]any, bool) {
	out := map[string]any{"ok": true, "database": "memory"}
	if s == nil || s.DB == nil {
		return out, true
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.DB.PingContext(ctx); err != nil {
		out["ok"] = false
		out["database"] = "unreachable"
		return out, false
	}
	out["database"] = "ok"
	return out, true
}

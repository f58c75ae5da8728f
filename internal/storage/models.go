package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Integration statuses. Integrations are never hard-deleted; disconnecting
// flips the status.
const (
	IntegrationActive       = "active"
	IntegrationDisconnected = "disconnected"
)

// Integration is one connected ad account. TokenCiphertext is opaque here;
// callers decrypt on use via secret.Cipher.
type Integration struct {
	AccountID         string
	TokenCiphertext   string
	PageID            string
	InstagramIDs      string // JSON array stored as text
	PreferredBackend  string // "openai" or "gemini"
	AutonomousEnabled bool
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Run records one optimizer invocation for an account.
type Run struct {
	ID             string
	AccountID      string
	Trigger        string // "scheduled", "manual", or "mcp"
	Status         string // "running", "completed", or "failed"
	ActionsApplied int
	Error          string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// ActionRecord is one attempted platform mutation inside a run.
type ActionRecord struct {
	ID        string
	RunID     string
	AccountID string
	TargetID  string
	Type      string // "pause" or "scale_up"
	OldBudget int64  // minor units; 0 for pauses
	NewBudget int64
	Status    string // "applied" or "failed"
	Error     string
	CreatedAt time.Time
}

// Package session implements the Session Manager (C2): owns every
// in-flight Browser Session, enforces the idle timeout, and routes
// adapter operations through a single owner per session.
package session

import (
	"time"

	"github.com/javimaligno/goapply-core/internal/browser"
)

// Status is the Browser Session lifecycle state.
type Status string

const (
	StatusCreating   Status = "creating"
	StatusActive     Status = "active"
	StatusNavigating Status = "navigating"
	StatusIdle       Status = "idle"
	StatusClosed     Status = "closed"
	StatusError      Status = "error"
)

// Record is the Browser Session entity.
type Record struct {
	ID           string        `json:"id"`
	Status       Status        `json:"status"`
	Backend      browser.Backend `json:"backend"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActionAt time.Time     `json:"last_action_at"`
	ActionCount  int           `json:"action_count"`
	CurrentURL   string        `json:"current_url"`
	PageTitle    string        `json:"page_title"`
}

// Config configures a new session, forwarded to the adapter's Initialize.
type Config struct {
	Backend browser.Backend
	Init    browser.InitConfig
}

// Factory builds a concrete Adapter for the requested backend. Callers
// supply this; the manager never constructs a devtools sidecar process or
// a direct-automation driver itself — ownership flows one way, manager
// to adapter.
type Factory func(backend browser.Backend) (browser.Adapter, error)

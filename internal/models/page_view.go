package models

import (
	"time"
)

type PageView struct {
	ID          int64     `json:"id"`
	UserID      *int64    `json:"user_id,omitempty"`
	VisitorID   string    `json:"visitor_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	Viewable    Viewable  `json:"-"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
	UserAgentID *int64    `json:"user_agent_id,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ViewJobKind tells the ingestion worker which store a job goes to.
type ViewJobKind string

const (
	JobPageView ViewJobKind = "page_view"
	JobBotView  ViewJobKind = "bot_view"
)

// ViewJob is the queue payload produced by the view tracker.
type ViewJob struct {
	Kind         ViewJobKind `json:"kind"`
	UserID       *int64      `json:"user_id,omitempty"`
	VisitorID    string      `json:"visitor_id,omitempty"`
	SessionID    string      `json:"session_id,omitempty"`
	ViewableType string      `json:"viewable_type"`
	ViewableID   int64       `json:"viewable_id"`
	IPAddress    string      `json:"ip_address"`
	UserAgent    string      `json:"user_agent"`
	Fingerprint  string      `json:"fingerprint,omitempty"`
	QueuedAt     time.Time   `json:"queued_at"`
}

// Viewable restores the typed viewable from the payload.
func (j *ViewJob) Viewable() (Viewable, error) {
	t, err := ParseViewableType(j.ViewableType)
	if err != nil {
		return Viewable{}, err
	}
	return Viewable{Type: t, ID: j.ViewableID}, nil
}

// UserAgent is a deduplicated user-agent label.
type UserAgent struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// HitCounter is one row of bot_views or anonymous_views.
type HitCounter struct {
	UserAgentID int64     `json:"user_agent_id"`
	Viewable    Viewable  `json:"-"`
	Hits        int64     `json:"hits"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// VisitorLink records that an anonymous visitor token was claimed by an account.
type VisitorLink struct {
	ID        int64     `json:"id"`
	VisitorID string    `json:"visitor_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

package models

// RequestInfo is what the tracking core needs to know about an HTTP request.
type RequestInfo struct {
	UserID         *int64 // authenticated principal, nil for guests
	VisitorID      string // visitor cookie value, may be empty
	SessionID      string
	IPAddress      string
	UserAgent      string
	AcceptLanguage string
}

// Identity is the effective (user, visitor) pair for attribution.
type Identity struct {
	UserID    *int64 `json:"user_id"`
	VisitorID string `json:"visitor_id,omitempty"`
}

// Session is the server-side state behind the session cookie.
type Session struct {
	ID string
	// VisitorsSyncedFor is the user id whose anonymous views were already
	// reattributed in this session, 0 if none.
	VisitorsSyncedFor int64
}

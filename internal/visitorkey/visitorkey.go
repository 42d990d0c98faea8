// Package visitorkey defines how a page view is reduced to a single
// "unique visitor" identity. The Go and SQL forms must stay in lockstep:
// user > visitor > fingerprint > session > ip.
package visitorkey

import (
	"strconv"
	"strings"
)

const (
	PrefixUser        = "user:"
	PrefixVisitor     = "visitor:"
	PrefixFingerprint = "fingerprint:"
	PrefixSession     = "session:"
	PrefixIP          = "ip:"
)

// Signals are the identity columns of one page view row.
type Signals struct {
	UserID      *int64
	VisitorID   string
	Fingerprint string
	SessionID   string
	IPAddress   string
}

// Key returns the discriminating identity string for a row.
func Key(s Signals) string {
	switch {
	case s.UserID != nil:
		return PrefixUser + strconv.FormatInt(*s.UserID, 10)
	case s.VisitorID != "":
		return PrefixVisitor + s.VisitorID
	case s.Fingerprint != "":
		return PrefixFingerprint + s.Fingerprint
	case s.SessionID != "":
		return PrefixSession + s.SessionID
	default:
		return PrefixIP + s.IPAddress
	}
}

// SQL returns a Postgres expression equivalent to Key over page_views columns.
// alias is the table alias, empty for unqualified columns.
func SQL(alias string) string {
	col := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}

	var b strings.Builder
	b.WriteString("(CASE")
	b.WriteString(" WHEN " + col("user_id") + " IS NOT NULL THEN '" + PrefixUser + "' || " + col("user_id") + "::text")
	for _, c := range []struct{ column, prefix string }{
		{"visitor_id", PrefixVisitor},
		{"fingerprint", PrefixFingerprint},
		{"session_id", PrefixSession},
	} {
		b.WriteString(" WHEN COALESCE(" + col(c.column) + ", '') <> '' THEN '" + c.prefix + "' || " + col(c.column))
	}
	b.WriteString(" ELSE '" + PrefixIP + "' || COALESCE(" + col("ip_address") + ", '') END)")
	return b.String()
}

// CountDistinctSQL is COUNT(DISTINCT <key>) for use in aggregate selects.
func CountDistinctSQL(alias string) string {
	return "COUNT(DISTINCT " + SQL(alias) + ")"
}

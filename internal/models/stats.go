package models

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var ErrInvalidCriteria = errors.New("invalid stats criteria")

type StatsRange string

const (
	RangeToday StatsRange = "today"
	RangeWeek  StatsRange = "week"
	RangeMonth StatsRange = "month"
	RangeYear  StatsRange = "year"
	RangeAll   StatsRange = "all"
)

// Since returns the lower bound of the range, nil for all time.
func (r StatsRange) Since(now time.Time) *time.Time {
	var t time.Time
	switch r {
	case RangeToday:
		y, m, d := now.Date()
		t = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case RangeWeek:
		t = now.AddDate(0, 0, -7)
	case RangeMonth:
		t = now.AddDate(0, -1, 0)
	case RangeYear:
		t = now.AddDate(-1, 0, 0)
	default:
		return nil
	}
	return &t
}

type StatsSort string

const (
	SortViewsDesc StatsSort = "views_desc"
	SortViewsAsc  StatsSort = "views_asc"
	SortNameAsc   StatsSort = "name_asc"
	SortNameDesc  StatsSort = "name_desc"
	SortLabelAsc  StatsSort = "label_asc"
	SortLabelDesc StatsSort = "label_desc"
)

// VisitorGrouping is the raw column the by-visitor report groups on.
type VisitorGrouping string

const (
	GroupByVisitorID   VisitorGrouping = "visitor_id"
	GroupByFingerprint VisitorGrouping = "fingerprint"
)

type VisitorType string

const (
	VisitorsAll    VisitorType = "all"
	VisitorsUsers  VisitorType = "users"
	VisitorsGuests VisitorType = "guests"
)

// StatsCriteria parameterises every aggregation query. Build it with
// NewStatsCriteria or ParseStatsCriteria and treat it as read-only.
type StatsCriteria struct {
	Range       StatsRange
	BloggerID   *int64
	BlogID      *int64
	Limit       *int
	Sort        StatsSort
	GroupBy     VisitorGrouping
	VisitorType VisitorType
	// Viewable narrows a report to a single blog or post.
	Viewable *Viewable
}

func NewStatsCriteria() StatsCriteria {
	return StatsCriteria{
		Range:       RangeWeek,
		Sort:        SortViewsDesc,
		GroupBy:     GroupByVisitorID,
		VisitorType: VisitorsAll,
	}
}

// EffectiveLimit returns 0 for unlimited, otherwise the limit floored at 1.
func (c StatsCriteria) EffectiveLimit() int {
	if c.Limit == nil {
		return 0
	}
	if *c.Limit < 1 {
		return 1
	}
	return *c.Limit
}

func (c StatsCriteria) Validate() error {
	switch c.Range {
	case RangeToday, RangeWeek, RangeMonth, RangeYear, RangeAll:
	default:
		return fmt.Errorf("%w: range %q", ErrInvalidCriteria, c.Range)
	}
	switch c.Sort {
	case SortViewsDesc, SortViewsAsc, SortNameAsc, SortNameDesc, SortLabelAsc, SortLabelDesc:
	default:
		return fmt.Errorf("%w: sort %q", ErrInvalidCriteria, c.Sort)
	}
	switch c.GroupBy {
	case GroupByVisitorID, GroupByFingerprint:
	default:
		return fmt.Errorf("%w: group %q", ErrInvalidCriteria, c.GroupBy)
	}
	switch c.VisitorType {
	case VisitorsAll, VisitorsUsers, VisitorsGuests:
	default:
		return fmt.Errorf("%w: visitor type %q", ErrInvalidCriteria, c.VisitorType)
	}
	return nil
}

// ParseStatsCriteria reads criteria from query parameters:
// range, blogger_id, blog_id, limit, sort, group, visitor_type, viewable_type, viewable_id.
func ParseStatsCriteria(q url.Values) (StatsCriteria, error) {
	c := NewStatsCriteria()

	if v := q.Get("range"); v != "" {
		c.Range = StatsRange(v)
	}
	if v := q.Get("sort"); v != "" {
		c.Sort = StatsSort(v)
	}
	if v := q.Get("group"); v != "" {
		c.GroupBy = VisitorGrouping(v)
	}
	if v := q.Get("visitor_type"); v != "" {
		c.VisitorType = VisitorType(v)
	}

	var err error
	if c.BloggerID, err = optionalID(q, "blogger_id"); err != nil {
		return c, err
	}
	if c.BlogID, err = optionalID(q, "blog_id"); err != nil {
		return c, err
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("%w: limit %q", ErrInvalidCriteria, v)
		}
		c.Limit = &n
	}
	if typ, id := q.Get("viewable_type"), q.Get("viewable_id"); typ != "" || id != "" {
		v, err := ParseViewable(typ, id)
		if err != nil {
			return c, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
		}
		c.Viewable = &v
	}

	return c, c.Validate()
}

func optionalID(q url.Values, key string) (*int64, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("%w: %s %q", ErrInvalidCriteria, key, v)
	}
	return &n, nil
}

type BlogStats struct {
	BlogID          int64  `json:"blog_id"`
	Name            string `json:"name"`
	BloggerID       int64  `json:"blogger_id"`
	Views           int64  `json:"views"`
	UniqueViews     int64  `json:"unique_views"`
	PostViews       int64  `json:"post_views"`
	PostUniqueViews int64  `json:"post_unique_views"`
}

type PostStats struct {
	PostID      int64  `json:"post_id"`
	BlogID      int64  `json:"blog_id"`
	Title       string `json:"title"`
	Views       int64  `json:"views"`
	UniqueViews int64  `json:"unique_views"`
}

type VisitorStats struct {
	Key           string `json:"key"`
	Label         string `json:"label"`
	// LabelMarkup is set when the label contains HTML; render it escaped.
	LabelMarkup   bool   `json:"label_markup,omitempty"`
	UserID        *int64 `json:"user_id,omitempty"`
	BlogViews     int64  `json:"blog_views"`
	PostViews     int64  `json:"post_views"`
	TotalViews    int64  `json:"total_views"`
	LifetimeViews int64  `json:"lifetime_views"`
}

type HitStats struct {
	UserAgent    string    `json:"user_agent"`
	ViewableType string    `json:"viewable_type"`
	ViewableID   int64     `json:"viewable_id"`
	Hits         int64     `json:"hits"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/SergeiKhy/blog-analytics/internal/visitorkey"
	"github.com/jackc/pgx/v5"
)

// StatsRepository runs the aggregation reports over page_views and the hit
// counter tables. since is the lower created_at bound, nil for all time.
type StatsRepository interface {
	BlogViews(ctx context.Context, c models.StatsCriteria, since *time.Time) ([]models.BlogStats, error)
	PostViews(ctx context.Context, c models.StatsCriteria, since *time.Time) ([]models.PostStats, error)
	VisitorViews(ctx context.Context, c models.StatsCriteria, since *time.Time) ([]models.VisitorStats, error)
	BotViews(ctx context.Context, c models.StatsCriteria) ([]models.HitStats, error)
	AnonymousViews(ctx context.Context, c models.StatsCriteria) ([]models.HitStats, error)
}

type statsRepository struct {
	db *PostgresDB
}

func NewStatsRepository(db *PostgresDB) StatsRepository {
	return &statsRepository{db: db}
}

// queryArgs hands out positional placeholders as arguments are added.
type queryArgs struct {
	values []any
}

func (a *queryArgs) add(v any) string {
	a.values = append(a.values, v)
	return "$" + strconv.Itoa(len(a.values))
}

// pageViewFilters are the range and visitor type predicates shared by every
// page_views scan in a report.
func pageViewFilters(args *queryArgs, alias string, c models.StatsCriteria, since *time.Time) []string {
	var where []string
	if since != nil {
		where = append(where, alias+".created_at >= "+args.add(*since))
	}
	switch c.VisitorType {
	case models.VisitorsUsers:
		where = append(where, alias+".user_id IS NOT NULL")
	case models.VisitorsGuests:
		where = append(where, alias+".user_id IS NULL")
	}
	return where
}

func and(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " AND " + strings.Join(conds, " AND ")
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conds, " AND ")
}

func limitClause(args *queryArgs, c models.StatsCriteria) string {
	if n := c.EffectiveLimit(); n > 0 {
		return "LIMIT " + args.add(n)
	}
	return ""
}

func (r *statsRepository) BlogViews(ctx context.Context, c models.StatsCriteria, since *time.Time) ([]models.BlogStats, error) {
	args := &queryArgs{}
	blogClass := args.add(models.MorphClassBlog)
	postClass := args.add(models.MorphClassPost)
	filters := and(pageViewFilters(args, "pv", c, since))
	uniq := visitorkey.CountDistinctSQL("pv")

	var where []string
	if c.BloggerID != nil {
		where = append(where, "b.user_id = "+args.add(*c.BloggerID))
	}
	if c.BlogID != nil {
		where = append(where, "b.id = "+args.add(*c.BlogID))
	}
	if c.Viewable != nil {
		switch c.Viewable.Type {
		case models.ViewableBlog:
			where = append(where, "b.id = "+args.add(c.Viewable.ID))
		case models.ViewablePost:
			where = append(where, "b.id = (SELECT blog_id FROM posts WHERE id = "+args.add(c.Viewable.ID)+")")
		}
	}

	var order string
	switch c.Sort {
	case models.SortViewsAsc:
		order = "views ASC, post_views ASC, b.id"
	case models.SortNameAsc:
		order = "LOWER(b.name) ASC, b.id"
	case models.SortNameDesc:
		order = "LOWER(b.name) DESC, b.id"
	default:
		order = "views DESC, post_views DESC, b.id"
	}

	query := fmt.Sprintf(`
		WITH blog_hits AS (
			SELECT pv.viewable_id AS blog_id, COUNT(*) AS views, %[1]s AS unique_views
			FROM page_views pv
			WHERE pv.viewable_type = %[2]s%[4]s
			GROUP BY pv.viewable_id
		),
		post_hits AS (
			SELECT p.blog_id, COUNT(*) AS views, %[1]s AS unique_views
			FROM page_views pv
			JOIN posts p ON p.id = pv.viewable_id
			WHERE pv.viewable_type = %[3]s%[4]s
			GROUP BY p.blog_id
		)
		SELECT
			b.id,
			b.name,
			b.user_id,
			COALESCE(bh.views, 0) AS views,
			COALESCE(bh.unique_views, 0) AS unique_views,
			COALESCE(ph.views, 0) AS post_views,
			COALESCE(ph.unique_views, 0) AS post_unique_views
		FROM blogs b
		LEFT JOIN blog_hits bh ON bh.blog_id = b.id
		LEFT JOIN post_hits ph ON ph.blog_id = b.id
		%[5]s
		ORDER BY %[6]s
		%[7]s
	`, uniq, blogClass, postClass, filters, whereClause(where), order, limitClause(args, c))

	rows, err := r.db.Pool.Query(ctx, query, args.values...)
	if err != nil {
		return nil, fmt.Errorf("failed to query blog stats: %w", err)
	}
	defer rows.Close()

	stats := make([]models.BlogStats, 0)
	for rows.Next() {
		var s models.BlogStats
		if err := rows.Scan(&s.BlogID, &s.Name, &s.BloggerID, &s.Views, &s.UniqueViews, &s.PostViews, &s.PostUniqueViews); err != nil {
			return nil, fmt.Errorf("failed to scan blog stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

func (r *statsRepository) PostViews(ctx context.Context, c models.StatsCriteria, since *time.Time) ([]models.PostStats, error) {
	args := &queryArgs{}
	postClass := args.add(models.MorphClassPost)
	filters := and(pageViewFilters(args, "pv", c, since))

	var where []string
	if c.BlogID != nil {
		where = append(where, "p.blog_id = "+args.add(*c.BlogID))
	}
	if c.BloggerID != nil {
		where = append(where, "EXISTS (SELECT 1 FROM blogs b WHERE b.id = p.blog_id AND b.user_id = "+args.add(*c.BloggerID)+")")
	}
	if c.Viewable != nil {
		switch c.Viewable.Type {
		case models.ViewablePost:
			where = append(where, "p.id = "+args.add(c.Viewable.ID))
		case models.ViewableBlog:
			where = append(where, "p.blog_id = "+args.add(c.Viewable.ID))
		}
	}

	var order string
	switch c.Sort {
	case models.SortViewsAsc:
		order = "views ASC, p.id"
	case models.SortNameAsc:
		order = "LOWER(p.title) ASC, p.id"
	case models.SortNameDesc:
		order = "LOWER(p.title) DESC, p.id"
	default:
		order = "views DESC, p.id"
	}

	query := fmt.Sprintf(`
		WITH post_hits AS (
			SELECT pv.viewable_id AS post_id, COUNT(*) AS views, %[1]s AS unique_views
			FROM page_views pv
			WHERE pv.viewable_type = %[2]s%[3]s
			GROUP BY pv.viewable_id
		)
		SELECT
			p.id,
			p.blog_id,
			p.title,
			COALESCE(ph.views, 0) AS views,
			COALESCE(ph.unique_views, 0) AS unique_views
		FROM posts p
		LEFT JOIN post_hits ph ON ph.post_id = p.id
		%[4]s
		ORDER BY %[5]s
		%[6]s
	`, visitorkey.CountDistinctSQL("pv"), postClass, filters, whereClause(where), order, limitClause(args, c))

	rows, err := r.db.Pool.Query(ctx, query, args.values...)
	if err != nil {
		return nil, fmt.Errorf("failed to query post stats: %w", err)
	}
	defer rows.Close()

	stats := make([]models.PostStats, 0)
	for rows.Next() {
		var s models.PostStats
		if err := rows.Scan(&s.PostID, &s.BlogID, &s.Title, &s.Views, &s.UniqueViews); err != nil {
			return nil, fmt.Errorf("failed to scan post stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// visitorLabelSQL prefers the account name, then a newsletter email tied to
// the visitor id, then the raw grouping key.
const visitorLabelSQL = "COALESCE(u.name, ns.email, g.grouping_key)"

func (r *statsRepository) VisitorViews(ctx context.Context, c models.StatsCriteria, since *time.Time) ([]models.VisitorStats, error) {
	column := "visitor_id"
	if c.GroupBy == models.GroupByFingerprint {
		column = "fingerprint"
	}

	args := &queryArgs{}
	blogClass := args.add(models.MorphClassBlog)
	postClass := args.add(models.MorphClassPost)

	blogPred := "pv.viewable_type = " + blogClass
	postPred := "pv.viewable_type = " + postClass
	having := ""
	if c.BlogID != nil {
		blogID := args.add(*c.BlogID)
		blogPred += " AND pv.viewable_id = " + blogID
		postPred += " AND pv.viewable_id IN (SELECT id FROM posts WHERE blog_id = " + blogID + ")"
		having = fmt.Sprintf("HAVING COUNT(*) FILTER (WHERE %s) + COUNT(*) FILTER (WHERE %s) > 0", blogPred, postPred)
	}

	where := []string{"COALESCE(pv." + column + ", '') <> ''"}
	where = append(where, pageViewFilters(args, "pv", c, since)...)
	if c.BloggerID != nil {
		owner := args.add(*c.BloggerID)
		where = append(where, fmt.Sprintf(`(
			(pv.viewable_type = %[1]s AND EXISTS (SELECT 1 FROM blogs b WHERE b.id = pv.viewable_id AND b.user_id = %[3]s))
			OR (pv.viewable_type = %[2]s AND EXISTS (
				SELECT 1 FROM posts p JOIN blogs b ON b.id = p.blog_id
				WHERE p.id = pv.viewable_id AND b.user_id = %[3]s
			))
		)`, blogClass, postClass, owner))
	}
	if c.Viewable != nil {
		where = append(where,
			"pv.viewable_type = "+args.add(c.Viewable.MorphClass()),
			"pv.viewable_id = "+args.add(c.Viewable.ID),
		)
	}

	var order string
	switch c.Sort {
	case models.SortViewsAsc:
		order = "total_views ASC, g.grouping_key"
	case models.SortLabelAsc, models.SortNameAsc:
		order = "LOWER(" + visitorLabelSQL + ") ASC, g.grouping_key"
	case models.SortLabelDesc, models.SortNameDesc:
		order = "LOWER(" + visitorLabelSQL + ") DESC, g.grouping_key"
	default:
		order = "total_views DESC, g.grouping_key"
	}

	query := fmt.Sprintf(`
		WITH grouped AS (
			SELECT
				pv.%[1]s AS grouping_key,
				MAX(pv.user_id) AS user_id,
				MAX(pv.visitor_id) AS visitor_id,
				COUNT(*) FILTER (WHERE %[2]s) AS blog_views,
				COUNT(*) FILTER (WHERE %[3]s) AS post_views
			FROM page_views pv
			%[4]s
			GROUP BY pv.%[1]s
			%[5]s
		)
		SELECT
			g.grouping_key,
			%[8]s AS label,
			g.user_id,
			g.blog_views,
			g.post_views,
			g.blog_views + g.post_views AS total_views,
			(SELECT COUNT(*) FROM page_views lv WHERE lv.%[1]s = g.grouping_key) AS lifetime_views
		FROM grouped g
		LEFT JOIN users u ON u.id = g.user_id
		LEFT JOIN LATERAL (
			SELECT n.email FROM newsletter_subscriptions n
			WHERE n.visitor_id = g.visitor_id
			ORDER BY n.id
			LIMIT 1
		) ns ON TRUE
		ORDER BY %[6]s
		%[7]s
	`, column, blogPred, postPred, whereClause(where), having, order, limitClause(args, c), visitorLabelSQL)

	rows, err := r.db.Pool.Query(ctx, query, args.values...)
	if err != nil {
		return nil, fmt.Errorf("failed to query visitor stats: %w", err)
	}
	defer rows.Close()

	stats := make([]models.VisitorStats, 0)
	for rows.Next() {
		var s models.VisitorStats
		if err := rows.Scan(&s.Key, &s.Label, &s.UserID, &s.BlogViews, &s.PostViews, &s.TotalViews, &s.LifetimeViews); err != nil {
			return nil, fmt.Errorf("failed to scan visitor stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

func (r *statsRepository) BotViews(ctx context.Context, c models.StatsCriteria) ([]models.HitStats, error) {
	return r.hits(ctx, "bot_views", c)
}

func (r *statsRepository) AnonymousViews(ctx context.Context, c models.StatsCriteria) ([]models.HitStats, error) {
	return r.hits(ctx, "anonymous_views", c)
}

// hits reads a lifetime counter table; the range does not apply.
func (r *statsRepository) hits(ctx context.Context, table string, c models.StatsCriteria) ([]models.HitStats, error) {
	args := &queryArgs{}

	var where []string
	if c.Viewable != nil {
		where = append(where,
			"h.viewable_type = "+args.add(c.Viewable.MorphClass()),
			"h.viewable_id = "+args.add(c.Viewable.ID),
		)
	}
	if c.BlogID != nil {
		blogID := args.add(*c.BlogID)
		where = append(where, fmt.Sprintf(
			"((h.viewable_type = %[1]s AND h.viewable_id = %[3]s) OR (h.viewable_type = %[2]s AND h.viewable_id IN (SELECT id FROM posts WHERE blog_id = %[3]s)))",
			args.add(models.MorphClassBlog), args.add(models.MorphClassPost), blogID,
		))
	}

	query := fmt.Sprintf(`
		SELECT ua.name, h.viewable_type, h.viewable_id, h.hits, h.last_seen_at
		FROM %s h
		JOIN user_agents ua ON ua.id = h.user_agent_id
		%s
		ORDER BY h.hits DESC, h.last_seen_at DESC
		%s
	`, table, whereClause(where), limitClause(args, c))

	rows, err := r.db.Pool.Query(ctx, query, args.values...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}

	stats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.HitStats, error) {
		var s models.HitStats
		err := row.Scan(&s.UserAgent, &s.ViewableType, &s.ViewableID, &s.Hits, &s.LastSeenAt)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}

	return stats, nil
}

package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/SergeiKhy/blog-analytics/internal/repository"
)

// MockPageViewRepository implements repository.PageViewRepository for testing
type MockPageViewRepository struct {
	mu        sync.RWMutex
	views     []*models.PageView
	nextID    int64
	InsertErr error
	// FailInserts makes the next N Insert calls fail with InsertErr
	FailInserts int
}

func NewMockPageViewRepository() *MockPageViewRepository {
	return &MockPageViewRepository{nextID: 1}
}

func (m *MockPageViewRepository) Insert(ctx context.Context, view *models.PageView) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailInserts > 0 {
		m.FailInserts--
		return m.InsertErr
	}

	view.ID = m.nextID
	m.nextID++
	stored := *view
	m.views = append(m.views, &stored)
	return nil
}

func (m *MockPageViewRepository) ReattributeAnonymous(ctx context.Context, userID int64, visitorID, fingerprint string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var updated int64
	for _, v := range m.views {
		if v.UserID != nil {
			continue
		}
		if (visitorID != "" && v.VisitorID == visitorID) || (fingerprint != "" && v.Fingerprint == fingerprint) {
			id := userID
			v.UserID = &id
			updated++
		}
	}
	return updated, nil
}

func (m *MockPageViewRepository) CountByViewable(ctx context.Context, viewable models.Viewable) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, v := range m.views {
		if v.Viewable == viewable {
			count++
		}
	}
	return count, nil
}

// Add stores a row as-is, bypassing the queue.
func (m *MockPageViewRepository) Add(view models.PageView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	view.ID = m.nextID
	m.nextID++
	m.views = append(m.views, &view)
}

// Views returns copies of all stored rows.
func (m *MockPageViewRepository) Views() []models.PageView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.PageView, 0, len(m.views))
	for _, v := range m.views {
		out = append(out, *v)
	}
	return out
}

// MockHitRepository implements repository.HitRepository for testing
type MockHitRepository struct {
	mu         sync.RWMutex
	userAgents map[string]int64
	bots       map[string]int64 // "{ua_id}|{viewable}" -> hits
	anonymous  map[string]int64
}

func NewMockHitRepository() *MockHitRepository {
	return &MockHitRepository{
		userAgents: make(map[string]int64),
		bots:       make(map[string]int64),
		anonymous:  make(map[string]int64),
	}
}

func (m *MockHitRepository) UserAgentID(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.userAgents[name]; ok {
		return id, nil
	}
	id := int64(len(m.userAgents) + 1)
	m.userAgents[name] = id
	return id, nil
}

func (m *MockHitRepository) IncrementBotView(ctx context.Context, userAgentID int64, viewable models.Viewable, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bots[hitKey(userAgentID, viewable)]++
	return nil
}

func (m *MockHitRepository) IncrementAnonymousView(ctx context.Context, userAgentID int64, viewable models.Viewable, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anonymous[hitKey(userAgentID, viewable)]++
	return nil
}

// BotHits sums bot hits for a viewable across user agents.
func (m *MockHitRepository) BotHits(viewable models.Viewable) int64 {
	return m.sum(m.bots, viewable)
}

// AnonymousHits sums anonymous hits for a viewable across user agents.
func (m *MockHitRepository) AnonymousHits(viewable models.Viewable) int64 {
	return m.sum(m.anonymous, viewable)
}

func (m *MockHitRepository) sum(hits map[string]int64, viewable models.Viewable) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, id := range m.userAgents {
		total += hits[hitKey(id, viewable)]
	}
	return total
}

func hitKey(userAgentID int64, viewable models.Viewable) string {
	return fmt.Sprintf("%d|%s", userAgentID, viewable)
}

// MockVisitorLinkRepository implements repository.VisitorLinkRepository for testing
type MockVisitorLinkRepository struct {
	mu     sync.RWMutex
	links  map[string]*models.VisitorLink
	GetErr error
}

func NewMockVisitorLinkRepository() *MockVisitorLinkRepository {
	return &MockVisitorLinkRepository{
		links: make(map[string]*models.VisitorLink),
	}
}

func (m *MockVisitorLinkRepository) GetByVisitorID(ctx context.Context, visitorID string) (*models.VisitorLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	link, exists := m.links[visitorID]
	if !exists {
		return nil, repository.ErrNotFound
	}
	return link, nil
}

func (m *MockVisitorLinkRepository) Link(ctx context.Context, visitorID string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if link, exists := m.links[visitorID]; exists {
		link.UserID = userID
		link.UpdatedAt = now
		return nil
	}
	m.links[visitorID] = &models.VisitorLink{
		ID:        int64(len(m.links) + 1),
		VisitorID: visitorID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// MockBlockStore implements repository.BlockStore for testing
type MockBlockStore struct {
	mu       sync.Mutex
	keys     map[string]time.Duration
	ClaimErr error
}

func NewMockBlockStore() *MockBlockStore {
	return &MockBlockStore{
		keys: make(map[string]time.Duration),
	}
}

func (m *MockBlockStore) Claim(ctx context.Context, keys []string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ClaimErr != nil {
		return false, m.ClaimErr
	}
	for _, k := range keys {
		if _, exists := m.keys[k]; exists {
			return false, nil
		}
	}
	for _, k := range keys {
		m.keys[k] = ttl
	}
	return true, nil
}

// Keys returns the stored keys with their TTLs.
func (m *MockBlockStore) Keys() map[string]time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]time.Duration, len(m.keys))
	for k, v := range m.keys {
		out[k] = v
	}
	return out
}

// Expire drops every key, as if the block window elapsed.
func (m *MockBlockStore) Expire() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = make(map[string]time.Duration)
}

// MockViewCounter implements repository.ViewCounter for testing
type MockViewCounter struct {
	mu     sync.RWMutex
	counts map[models.Viewable]int64
	GetErr error
}

func NewMockViewCounter() *MockViewCounter {
	return &MockViewCounter{
		counts: make(map[models.Viewable]int64),
	}
}

func (m *MockViewCounter) Incr(ctx context.Context, viewable models.Viewable) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.counts[viewable]; !exists {
		return 0, repository.ErrCacheMiss
	}
	m.counts[viewable]++
	return m.counts[viewable], nil
}

func (m *MockViewCounter) Get(ctx context.Context, viewable models.Viewable) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return 0, m.GetErr
	}
	n, exists := m.counts[viewable]
	if !exists {
		return 0, repository.ErrCacheMiss
	}
	return n, nil
}

func (m *MockViewCounter) Seed(ctx context.Context, viewable models.Viewable, count int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.counts[viewable]; !exists {
		m.counts[viewable] = count
	}
	return nil
}

// Value returns the counter and whether it is set.
func (m *MockViewCounter) Value(viewable models.Viewable) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.counts[viewable]
	return n, ok
}

// MockViewQueue implements repository.ViewQueue for testing
type MockViewQueue struct {
	mu         sync.Mutex
	pending    []string
	processing []string
	acked      int
	EnqueueErr error
}

func NewMockViewQueue() *MockViewQueue {
	return &MockViewQueue{}
}

func (m *MockViewQueue) Enqueue(ctx context.Context, job *models.ViewJob) error {
	if m.EnqueueErr != nil {
		return m.EnqueueErr
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, string(data))
	return nil
}

// EnqueueRaw pushes an arbitrary payload, e.g. a malformed one.
func (m *MockViewQueue) EnqueueRaw(payload string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, payload)
}

func (m *MockViewQueue) Dequeue(ctx context.Context, timeout time.Duration) (*repository.QueuedJob, error) {
	deadline := time.Now().Add(timeout)
	for {
		if job, ok, err := m.pop(); ok || err != nil {
			return job, err
		}
		if time.Now().After(deadline) {
			return nil, repository.ErrQueueEmpty
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (m *MockViewQueue) pop() (*repository.QueuedJob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		return nil, false, nil
	}
	payload := m.pending[0]
	m.pending = m.pending[1:]

	queued := &repository.QueuedJob{Payload: payload}
	if err := json.Unmarshal([]byte(payload), &queued.Job); err != nil {
		return nil, false, err
	}
	m.processing = append(m.processing, payload)
	return queued, true, nil
}

func (m *MockViewQueue) Ack(ctx context.Context, job *repository.QueuedJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeProcessing(job.Payload)
	m.acked++
	return nil
}

func (m *MockViewQueue) Nack(ctx context.Context, job *repository.QueuedJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeProcessing(job.Payload)
	m.pending = append(m.pending, job.Payload)
	return nil
}

func (m *MockViewQueue) Recover(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.processing)
	m.pending = append(m.processing, m.pending...)
	m.processing = nil
	return n, nil
}

func (m *MockViewQueue) Len(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pending)), nil
}

func (m *MockViewQueue) removeProcessing(payload string) {
	for i, p := range m.processing {
		if p == payload {
			m.processing = append(m.processing[:i], m.processing[i+1:]...)
			return
		}
	}
}

// Jobs decodes the pending jobs without consuming them.
func (m *MockViewQueue) Jobs() []models.ViewJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]models.ViewJob, 0, len(m.pending))
	for _, p := range m.pending {
		var job models.ViewJob
		if err := json.Unmarshal([]byte(p), &job); err == nil {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// Acked is the number of acknowledged jobs.
func (m *MockViewQueue) Acked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked
}

// InFlight is the number of dequeued, unacknowledged jobs.
func (m *MockViewQueue) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.processing)
}

// MockSessionStore implements repository.SessionStore for testing
type MockSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		sessions: make(map[string]*models.Session),
	}
}

func (m *MockSessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, exists := m.sessions[id]; exists {
		copied := *s
		return &copied, nil
	}
	return &models.Session{ID: id}, nil
}

func (m *MockSessionStore) MarkVisitorsSynced(ctx context.Context, id string, userID int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = &models.Session{ID: id, VisitorsSyncedFor: userID}
	return nil
}

func (m *MockSessionStore) Touch(ctx context.Context, id string, ttl time.Duration) error {
	return nil
}

// MockStatsRepository implements repository.StatsRepository for testing.
// It returns the configured rows and records the last call.
type MockStatsRepository struct {
	mu        sync.Mutex
	Blogs     []models.BlogStats
	Posts     []models.PostStats
	Visitors  []models.VisitorStats
	Bots      []models.HitStats
	Anonymous []models.HitStats
	Err       error
	Criteria  models.StatsCriteria
	Since     *time.Time
	Calls     int
}

func NewMockStatsRepository() *MockStatsRepository {
	return &MockStatsRepository{}
}

func (m *MockStatsRepository) record(c models.StatsCriteria, since *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Criteria = c
	m.Since = since
	m.Calls++
}

func (m *MockStatsRepository) BlogViews(ctx context.Context, c models.StatsCriteria, since *time.Time) ([]models.BlogStats, error) {
	m.record(c, since)
	return m.Blogs, m.Err
}

func (m *MockStatsRepository) PostViews(ctx context.Context, c models.StatsCriteria, since *time.Time) ([]models.PostStats, error) {
	m.record(c, since)
	return m.Posts, m.Err
}

func (m *MockStatsRepository) VisitorViews(ctx context.Context, c models.StatsCriteria, since *time.Time) ([]models.VisitorStats, error) {
	m.record(c, since)
	out := make([]models.VisitorStats, len(m.Visitors))
	copy(out, m.Visitors)
	return out, m.Err
}

func (m *MockStatsRepository) BotViews(ctx context.Context, c models.StatsCriteria) ([]models.HitStats, error) {
	m.record(c, nil)
	return m.Bots, m.Err
}

func (m *MockStatsRepository) AnonymousViews(ctx context.Context, c models.StatsCriteria) ([]models.HitStats, error) {
	m.record(c, nil)
	return m.Anonymous, m.Err
}

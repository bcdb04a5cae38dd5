package services

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/reported-users/apiserver/internal/authz"
	"github.com/reported-users/apiserver/internal/store"
	"github.com/reported-users/apiserver/types"
)

// memUserRepo is an in-memory UserRepository for tests.
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]types.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]types.User)}
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrDuplicateEmail
		}
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	for id, existing := range r.users {
		if id != user.ID && existing.Email == user.Email {
			return types.User{}, store.ErrDuplicateEmail
		}
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

// memReportRepo is an in-memory ReportRepository for tests. List applies
// the same filter semantics the SQL store implements.
type memReportRepo struct {
	mu      sync.Mutex
	reports map[string]types.Report
}

func newMemReportRepo() *memReportRepo {
	return &memReportRepo{reports: make(map[string]types.Report)}
}

func (r *memReportRepo) Create(_ context.Context, report types.Report) (types.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	report.CreatedAt = now
	report.UpdatedAt = now
	r.reports[report.ID] = report
	return report, nil
}

func (r *memReportRepo) GetByID(_ context.Context, id string) (types.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[id]
	if !ok {
		return types.Report{}, store.ErrNotFound
	}
	return report, nil
}

func (r *memReportRepo) List(_ context.Context, filter authz.Filter) ([]types.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Report
	for _, report := range r.reports {
		if filter.Matches(report) {
			out = append(out, report)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memReportRepo) Update(_ context.Context, report types.Report) (types.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.reports[report.ID]
	if !ok {
		return types.Report{}, store.ErrNotFound
	}
	existing.Name = report.Name
	existing.IDNumber = report.IDNumber
	existing.Location = report.Location
	existing.Description = report.Description
	existing.Status = report.Status
	existing.EvidenceKeys = report.EvidenceKeys
	existing.UpdatedAt = time.Now()
	r.reports[report.ID] = existing
	return existing, nil
}

func (r *memReportRepo) SetStatus(_ context.Context, id string, status types.ReportStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[id]
	if !ok {
		return store.ErrNotFound
	}
	report.Status = status
	report.UpdatedAt = time.Now()
	r.reports[id] = report
	return nil
}

func (r *memReportRepo) SetDeleted(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[id]
	if !ok {
		return store.ErrNotFound
	}
	report.Deleted = true
	report.UpdatedAt = time.Now()
	r.reports[id] = report
	return nil
}

// memObjectStorage is an in-memory storage backend for tests.
type memObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjectStorage() *memObjectStorage {
	return &memObjectStorage{objects: make(map[string][]byte)}
}

func (s *memObjectStorage) EnsureBucket(context.Context) error { return nil }

func (s *memObjectStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memObjectStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memObjectStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memObjectStorage) Bucket() string { return "test-bucket" }

// capturedEvent records one publish call.
type capturedEvent struct {
	Channel string
	Data    []byte
	Attrs   map[string]string
}

// fakePublisher records published events for assertions.
type fakePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *fakePublisher) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{Channel: channel, Data: data, Attrs: attrs})
	return "msg-1", nil
}

func (p *fakePublisher) published() []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]capturedEvent(nil), p.events...)
}

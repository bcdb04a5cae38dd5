package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reported-users/apiserver/config"
	"github.com/reported-users/apiserver/internal/authz"
	"github.com/reported-users/apiserver/internal/services"
	"github.com/reported-users/apiserver/internal/storage"
	"github.com/reported-users/apiserver/internal/store"
	"github.com/reported-users/apiserver/internal/token"
	"github.com/reported-users/apiserver/types"
	"github.com/stretchr/testify/require"
)

const testAdminSecret = "deploy-secret"

// testEnv wires the full router against in-memory repositories, the
// same way the server wires it against Postgres.
type testEnv struct {
	router  chi.Router
	users   *memUserRepo
	reports *memReportRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tokenService, err := token.NewService(config.JWTConfig{
		Secret:   "test-secret",
		Issuer:   "reported-users-api",
		Audience: "reported-users-clients",
	})
	require.NoError(t, err)

	users := newMemUserRepo()
	reports := newMemReportRepo()
	userService := services.NewUserService(users, testAdminSecret)
	reportService := services.NewReportService(reports).
		WithStorage(storage.NewStorage(newMemObjectStorage()))

	authMiddleware := RequireAuth(tokenService)

	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, userService, tokenService)
	})
	router.Route("/users", func(r chi.Router) {
		UserRouter(r, userService, authMiddleware)
	})
	router.Route("/reported-users", func(r chi.Router) {
		ReportRouter(r, reportService, userService, authMiddleware, true)
	})

	return &testEnv{router: router, users: users, reports: reports}
}

// do performs a JSON request against the router. A non-nil body is
// JSON-encoded; a nonempty token is sent as a bearer credential.
func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// upload performs a multipart evidence upload against the router.
func (e *testEnv) upload(t *testing.T, path, bearer, field, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+bearer)

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &value))
	return value
}

// register creates an account and returns it.
func (e *testEnv) register(t *testing.T, email, adminSecret string) types.User {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Name:        "Test User",
		Email:       email,
		Password:    "password1",
		AdminSecret: adminSecret,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeJSON[types.User](t, rec)
}

// login authenticates and returns the session token.
func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email:    email,
		Password: "password1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeJSON[TokenResponse](t, rec).Token
}

// registerAndLogin creates an account and returns its session token.
func (e *testEnv) registerAndLogin(t *testing.T, email, adminSecret string) string {
	t.Helper()
	e.register(t, email, adminSecret)
	return e.login(t, email)
}

// memUserRepo is an in-memory user repository for handler tests.
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

// memReportRepo is an in-memory report repository for handler tests.
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

// memObjectStorage is an in-memory storage backend for handler tests.
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

package personnel

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/garrison-hq/garrison/internal/rbac"
	"github.com/garrison-hq/garrison/internal/session"
	_ "github.com/garrison-hq/garrison/internal/testing/guard"
)

type stubAuth struct {
	identity session.Identity
}

func (s *stubAuth) Authenticate(context.Context, string, string) (*session.Identity, error) {
	clone := s.identity
	return &clone, nil
}

type memStore struct {
	identity *session.Identity
}

func (m *memStore) Save(_ context.Context, identity *session.Identity) error {
	clone := *identity
	m.identity = &clone
	return nil
}

func (m *memStore) Load(context.Context) (*session.Identity, error) {
	if m.identity == nil {
		return nil, nil
	}
	clone := *m.identity
	return &clone, nil
}

func (m *memStore) Clear(context.Context) error {
	m.identity = nil
	return nil
}

func loginAs(t *testing.T, role rbac.Role) *session.Manager {
	t.Helper()
	m, err := session.NewManager(session.ManagerConfig{
		Authenticator: &stubAuth{identity: session.Identity{
			ID:          "u-100",
			DisplayName: "Dana Avci",
			Email:       "dana@garrison.test",
			Role:        role,
		}},
		Store:   &memStore{},
		Catalog: rbac.DefaultCatalog(),
		Timer: session.TimerConfig{
			TTL:              time.Minute,
			WarningLead:      10 * time.Second,
			ActivityThrottle: time.Second,
		},
	})
	require.NoError(t, err)
	require.NoError(t, m.Login(context.Background(), "dana@garrison.test", "irrelevant"))
	t.Cleanup(m.Close)
	return m
}

func newTestServer(t *testing.T, repo *fakeRepo, m *session.Manager) *httptest.Server {
	t.Helper()
	handler := NewHandler(slog.Default(), NewService(slog.Default(), repo))

	r := chi.NewRouter()
	if m != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(session.ContextWithManager(req.Context(), m)))
			})
		})
	}
	r.Route("/personnel", handler.MountRoutes)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func seedRecord(t *testing.T, repo *fakeRepo, status string) *Record {
	t.Helper()
	rec := &Record{
		ServiceNumber: "RSV1001",
		FullName:      "Emre Kaya",
		Email:         "emre@garrison.test",
		Role:          rbac.RoleReservist,
		Company:       "Bravo",
		ServiceRank:   "Private",
		Status:        status,
	}
	require.NoError(t, repo.Create(context.Background(), rec))
	return rec
}

func TestListRequiresViewPermission(t *testing.T) {
	repo := newFakeRepo()

	srv := newTestServer(t, repo, loginAs(t, rbac.RoleReservist))
	resp, err := http.Get(srv.URL + "/personnel/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestListAsStaff(t *testing.T) {
	repo := newFakeRepo()
	seedRecord(t, repo, StatusPending)

	srv := newTestServer(t, repo, loginAs(t, rbac.RoleStaff))
	resp, err := http.Get(srv.URL + "/personnel/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body listResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Records, 1)
	require.Equal(t, "RSV1001", body.Records[0].ServiceNumber)
	require.Equal(t, 1, body.Pagination.Total)
}

func TestAnonymousIsRejected(t *testing.T) {
	repo := newFakeRepo()

	srv := newTestServer(t, repo, nil)
	resp, err := http.Get(srv.URL + "/personnel/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOwnProfileAsReservist(t *testing.T) {
	repo := newFakeRepo()
	rec := &Record{
		ServiceNumber: "RSV1001",
		FullName:      "Dana Avci",
		Email:         "dana@garrison.test",
		Role:          rbac.RoleReservist,
		Company:       "Bravo",
		ServiceRank:   "Private",
		Status:        StatusActive,
	}
	require.NoError(t, repo.Create(context.Background(), rec))

	srv := newTestServer(t, repo, loginAs(t, rbac.RoleReservist))
	resp, err := http.Get(srv.URL + "/personnel/me")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "RSV1001", got.ServiceNumber)
}

func TestApproveAsStaff(t *testing.T) {
	repo := newFakeRepo()
	rec := seedRecord(t, repo, StatusPending)

	srv := newTestServer(t, repo, loginAs(t, rbac.RoleStaff))
	resp, err := http.Post(srv.URL+"/personnel/1/approve", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, StatusActive, repo.records[rec.ID].Status)

	// A second approval finds the record already active.
	resp2, err := http.Post(srv.URL+"/personnel/1/approve", "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusConflict, resp2.StatusCode)
}

func TestEnrollRequiresManagePermission(t *testing.T) {
	repo := newFakeRepo()
	payload := `{"service_number":"STF2001","full_name":"Okan Demir","email":"okan@garrison.test","role":"STAFF","company":"HQ","service_rank":"Corporal"}`

	// STAFF can approve but cannot enroll.
	srv := newTestServer(t, repo, loginAs(t, rbac.RoleStaff))
	resp, err := http.Post(srv.URL+"/personnel/", "application/json", bytes.NewBufferString(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	srv2 := newTestServer(t, repo, loginAs(t, rbac.RoleAdmin))
	resp2, err := http.Post(srv2.URL+"/personnel/", "application/json", bytes.NewBufferString(payload))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusCreated, resp2.StatusCode)
}

func TestEnrollValidatesPayload(t *testing.T) {
	repo := newFakeRepo()

	srv := newTestServer(t, repo, loginAs(t, rbac.RoleAdmin))
	resp, err := http.Post(srv.URL+"/personnel/", "application/json",
		bytes.NewBufferString(`{"service_number":"x","full_name":"","email":"nope","role":"STAFF"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSimulatedRoleGatesDirectory(t *testing.T) {
	repo := newFakeRepo()
	seedRecord(t, repo, StatusActive)

	m := loginAs(t, rbac.RoleDirector)
	require.NoError(t, m.SimulateRole(rbac.RoleReservist))

	srv := newTestServer(t, repo, m)
	resp, err := http.Get(srv.URL + "/personnel/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	m.ClearSimulatedRole()
	resp2, err := http.Get(srv.URL + "/personnel/")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
}

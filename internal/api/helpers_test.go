package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/RaufunNazin/bnetdiag/internal/audit"
	"github.com/RaufunNazin/bnetdiag/internal/auth"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/config"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/database"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/logging"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/metrics"
	"github.com/RaufunNazin/bnetdiag/internal/topology"
	_ "github.com/RaufunNazin/bnetdiag/migrations"
)

const (
	testSecret   = "test-secret-key-at-least-32-characters-long"
	testPassword = "correct-horse-battery"
	homeArea     = int64(5)
	otherArea    = int64(6)
)

type testEnv struct {
	srv     *Server
	handler http.Handler
	db      *database.DB
	users   *auth.SQLiteUserRepository
	audit   *audit.SQLiteRepository
	prom    *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	log := logging.Discard()
	svc := topology.NewService(db, log)
	users := auth.NewUserRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)
	prom := metrics.New("test", db.Stats)
	svc.AddListener(prom)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testSecret, AccessTokenTTL: 60},
		},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Logger:   log,
		Topology: svc,
		Users:    users,
		Audit:    auditRepo,
		Prom:     prom,
		Health:   map[string]HealthChecker{"database": db},
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	svc.AddListener(srv.Hub())

	return &testEnv{
		srv:     srv,
		handler: srv.buildRouter(),
		db:      db,
		users:   users,
		audit:   auditRepo,
		prom:    prom,
	}
}

// userToken provisions a user and returns a signed access token for it.
func (e *testEnv) userToken(t *testing.T, username string, role auth.Role, area *int64) string {
	t.Helper()
	user, _, err := auth.Provision(context.Background(), e.users, auth.NewUserParams{
		Username: username,
		Password: testPassword,
		Role:     role,
		AreaID:   area,
	}, logging.Discard().Logger)
	if err != nil {
		t.Fatalf("Provision(%s) error = %v", username, err)
	}
	token, err := auth.GenerateAccessToken(user, testSecret, 60)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, want, rec.Body.String())
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rec, status)
	got := decode[Error](t, rec)
	if got.Code != code {
		t.Errorf("error code = %q, want %q", got.Code, code)
	}
}

// createDevice posts a device and returns its id.
func (e *testEnv) createDevice(t *testing.T, token, name, nodeType string, swID *int64) int64 {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/devices", token, map[string]any{
		"name": name, "node_type": nodeType, "sw_id": swID,
	})
	expectStatus(t, rec, http.StatusCreated)
	res := decode[topology.Result](t, rec)
	if res.DeviceID == nil {
		t.Fatalf("create %s returned no device_id", name)
	}
	return *res.DeviceID
}

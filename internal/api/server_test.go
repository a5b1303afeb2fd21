package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignite/adops-console/internal/auth"
	"github.com/ignite/adops-console/internal/cache"
	"github.com/ignite/adops-console/internal/config"
	"github.com/ignite/adops-console/internal/jobs"
	"github.com/ignite/adops-console/internal/meta"
	"github.com/ignite/adops-console/internal/notify"
	"github.com/ignite/adops-console/internal/reports"
	"github.com/ignite/adops-console/internal/rules"
	"github.com/ignite/adops-console/internal/scheduler"
	"github.com/ignite/adops-console/internal/settings"
	"github.com/ignite/adops-console/internal/webhook"
)

type testEnv struct {
	server *Server
	mock   sqlmock.Sqlmock
	tokens *auth.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	settingsStore := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"))
	tokens := auth.NewManager(config.AuthConfig{JWTSecret: "test-secret", TokenTTLMinutes: 60})
	fanout := notify.NewFanout(nil, nil)
	rulesStore := rules.NewStore(db)

	svc := Services{
		Jobs:      jobs.NewPool(jobs.NewStore(db), 1),
		Recipes:   reports.NewStore(db),
		Rules:     rulesStore,
		Engine:    rules.NewEngine(rulesStore, nil, nil, nil),
		Schedules: scheduler.NewStore(db),
		Meta:      meta.NewClient("https://graph.example.com", "v21.0", settingsStore),
		Settings:  settingsStore,
		Users:     auth.NewUserStore(db),
		Tokens:    tokens,
		Webhooks:  webhook.NewHandler(webhook.NewIngestor(settingsStore, fanout)),
		Cache:     cache.New(nil),
	}
	server := NewServer(config.ServerConfig{Environment: "development"}, svc)
	return &testEnv{server: server, mock: mock, tokens: tokens}
}

func (e *testEnv) token(t *testing.T, role string) string {
	t.Helper()
	token, err := e.tokens.Issue(&auth.User{ID: "u1", Username: "tester", Role: role})
	require.NoError(t, err)
	return token
}

func (e *testEnv) request(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthNoAuth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.request(t, "GET", "/health", "", "")
	assert.Equal(t, 200, rec.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	e := newTestEnv(t)
	rec := e.request(t, "GET", "/api/reports/templates", "", "")
	assert.Equal(t, 401, rec.Code)
}

func TestLoginAndMe(t *testing.T) {
	e := newTestEnv(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2boogie"), bcrypt.MinCost)
	require.NoError(t, err)

	e.mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE username = $1`)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "username", "email", "password_hash", "role", "is_active", "created_at",
		}).AddRow("u1", "alice", "alice@example.com", string(hash), auth.RoleManager, true, time.Now()))

	rec := e.request(t, "POST", "/api/auth/login",
		`{"username":"alice","password":"hunter2boogie"}`, "")
	require.Equal(t, 200, rec.Code, rec.Body.String())

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)

	rec = e.request(t, "GET", "/api/auth/me", "", resp.AccessToken)
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alice"`)
}

func TestLoginBadPassword(t *testing.T) {
	e := newTestEnv(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2boogie"), bcrypt.MinCost)
	require.NoError(t, err)

	e.mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE username = $1`)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "username", "email", "password_hash", "role", "is_active", "created_at",
		}).AddRow("u1", "alice", "", string(hash), auth.RoleManager, true, time.Now()))

	rec := e.request(t, "POST", "/api/auth/login",
		`{"username":"alice","password":"nope"}`, "")
	assert.Equal(t, 401, rec.Code)
}

func TestRoleGates(t *testing.T) {
	e := newTestEnv(t)

	rec := e.request(t, "POST", "/api/alerts/rules", `{}`, e.token(t, auth.RoleViewer))
	assert.Equal(t, 403, rec.Code, "viewers cannot create alert rules")

	rec = e.request(t, "POST", "/api/automation/rules", `{}`, e.token(t, auth.RoleManager))
	assert.Equal(t, 403, rec.Code, "managers cannot create automation rules")

	rec = e.request(t, "PUT", "/api/settings/", `{}`, e.token(t, auth.RoleManager))
	assert.Equal(t, 403, rec.Code, "settings writes are admin only")
}

func TestTemplateCatalog(t *testing.T) {
	e := newTestEnv(t)

	rec := e.request(t, "GET", "/api/reports/templates", "", e.token(t, auth.RoleViewer))
	require.Equal(t, 200, rec.Code)

	var catalog []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &catalog))
	assert.GreaterOrEqual(t, len(catalog), 15)
}

func TestCreateAlertRuleValidation(t *testing.T) {
	e := newTestEnv(t)

	body := `{"name":"Bad","metric":"vibes","condition":"lt","threshold":1,"cooldown_minutes":60}`
	rec := e.request(t, "POST", "/api/alerts/rules", body, e.token(t, auth.RoleAdmin))
	assert.Equal(t, 422, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown metric")
}

func alertRuleRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "metric", "condition", "threshold", "ad_account_id",
		"channels", "email_to", "im_to", "cooldown_minutes", "is_active",
		"last_triggered", "trigger_count", "created_at",
	}).AddRow("ar1", "High CPA", "cpa", "gt", 25.0, "",
		[]byte(`["email"]`), "ops@example.com", "", 60, true, nil, 0, time.Now())
}

func TestAlertRuleRoutes(t *testing.T) {
	e := newTestEnv(t)
	viewer := e.token(t, auth.RoleViewer)

	e.mock.ExpectQuery(regexp.QuoteMeta(`FROM alert_rules`)).
		WillReturnRows(alertRuleRow())
	rec := e.request(t, "GET", "/api/alerts/rules", "", viewer)
	require.Equal(t, 200, rec.Code, rec.Body.String())

	e.mock.ExpectQuery(regexp.QuoteMeta(`FROM alert_rules WHERE id = $1`)).
		WithArgs("ar1").
		WillReturnRows(alertRuleRow())
	rec = e.request(t, "GET", "/api/alerts/rules/ar1", "", viewer)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "High CPA")

	e.mock.ExpectQuery(regexp.QuoteMeta(`FROM alert_rules WHERE id = $1`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	rec = e.request(t, "GET", "/api/alerts/rules/ghost", "", viewer)
	assert.Equal(t, 404, rec.Code)

	rec = e.request(t, "POST", "/api/alerts/test/ar1", "", viewer)
	assert.Equal(t, 403, rec.Code, "rule test fires notifications, writer only")
}

func TestUpstreamErrorPassesThrough(t *testing.T) {
	s := &Server{cfg: config.ServerConfig{Environment: "production"}}

	rec := httptest.NewRecorder()
	s.respondUpstreamError(rec, &meta.APIError{
		Class:      meta.ErrClassUpstream,
		StatusCode: 400,
		Code:       100,
		Message:    "Unsupported get request",
	})
	assert.Equal(t, 503, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unsupported get request",
		"upstream detail survives even in production")
}

func TestEnqueueExportMissingRecipe(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectQuery(regexp.QuoteMeta(`FROM saved_reports WHERE id = $1`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := e.request(t, "POST", "/api/jobs/export-report/ghost", "", e.token(t, auth.RoleManager))
	assert.Equal(t, 404, rec.Code)
}

func TestEnqueueExport(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectQuery(regexp.QuoteMeta(`FROM saved_reports WHERE id = $1`)).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "template_ids", "window_days", "ad_account_id", "created_at",
		}).AddRow("r1", "Smoke Test", []byte(`["template_1"]`), 7, nil, time.Now()))
	e.mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO jobs`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	rec := e.request(t, "POST", "/api/jobs/export-report/r1", "", e.token(t, auth.RoleManager))
	require.Equal(t, 202, rec.Code, rec.Body.String())

	var job jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, jobs.KindExport, job.Kind)
	assert.Equal(t, jobs.StatusPending, job.Status)
}

func jobRow(kind, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "kind", "subject_id", "status", "progress",
		"result_text", "output_path", "output_name", "aux_output_path",
		"error_message", "created_at", "started_at", "completed_at",
	}).AddRow("j1", kind, "r1", status, 40, "", "", "", "", "", time.Now(), nil, nil)
}

func TestJobStatus(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectQuery(regexp.QuoteMeta(`FROM jobs WHERE id = $1`)).
		WithArgs("j1").
		WillReturnRows(jobRow(jobs.KindExport, jobs.StatusRunning))

	rec := e.request(t, "GET", "/api/jobs/j1", "", e.token(t, auth.RoleViewer))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running"`)
}

func TestDownloadRequiresCompletion(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectQuery(regexp.QuoteMeta(`FROM jobs WHERE id = $1`)).
		WithArgs("j1").
		WillReturnRows(jobRow(jobs.KindExport, jobs.StatusRunning))

	rec := e.request(t, "GET", "/api/jobs/j1/download", "", e.token(t, auth.RoleViewer))
	assert.Equal(t, 409, rec.Code)
}

func TestMetaPassthroughNotConfigured(t *testing.T) {
	e := newTestEnv(t)

	rec := e.request(t, "GET", "/api/meta/campaigns", "", e.token(t, auth.RoleViewer))
	assert.Equal(t, 503, rec.Code, "no upstream credentials configured")
}

func TestMetaPassthroughServesSnapshotCache(t *testing.T) {
	e := newTestEnv(t)
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	e.server.svc.Cache = cache.New(client)

	e.server.svc.Cache.SetJSON(context.Background(), "meta:campaigns:7:",
		[]meta.Campaign{{ID: "c1", Name: "Cached Campaign", Status: "ACTIVE"}}, time.Minute)

	// Upstream is unconfigured, so a 200 proves the snapshot served.
	rec := e.request(t, "GET", "/api/meta/campaigns", "", e.token(t, auth.RoleViewer))
	require.Equal(t, 200, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Cached Campaign")
}

func TestSettingsRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	admin := e.token(t, auth.RoleAdmin)

	rec := e.request(t, "PUT", "/api/settings/",
		`{"META_AD_ACCOUNT_ID":"act_42"}`, admin)
	require.Equal(t, 200, rec.Code, rec.Body.String())

	rec = e.request(t, "GET", "/api/settings/", "", admin)
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "act_42")
}

func TestSettingsRejectsUnknownKey(t *testing.T) {
	e := newTestEnv(t)

	rec := e.request(t, "PUT", "/api/settings/", `{"NOT_A_KEY":"x"}`, e.token(t, auth.RoleAdmin))
	assert.Equal(t, 422, rec.Code)
}

func TestWebhookMountedWithoutAuth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.request(t, "GET", "/api/webhooks/meta?hub.mode=subscribe&hub.verify_token=x&hub.challenge=1", "", "")
	assert.Equal(t, 403, rec.Code, "reachable without bearer token, rejected on verify token")
}

package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	secret := []byte("test-secret")
	policy := NewDefaultPolicy(nil, nil)
	mw := NewMiddleware(secret, policy)
	handler := mw.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/machines", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ViewerReadsStats(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "viewer", time.Hour)
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))

	var gotRole Role
	var gotSubject string
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRole = RoleFromContext(r.Context())
		gotSubject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats/buckets?machine_id=1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if gotRole != RoleViewer || gotSubject != "user-1" {
		t.Fatalf("unexpected identity: role=%q subject=%q", gotRole, gotSubject)
	}
}

func TestAuthMiddleware_ViewerForbiddenReportExport(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "viewer", time.Hour)
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/daily.xlsx", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}

	token = mustToken(t, secret, "operator", time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/reports/daily.xlsx", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for operator, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ExpiredAndInvalidTokens(t *testing.T) {
	secret := []byte("test-secret")
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(okHandler())

	for name, token := range map[string]string{
		"expired":      mustToken(t, secret, "admin", -time.Minute),
		"wrong secret": mustToken(t, []byte("other"), "admin", time.Hour),
		"bad role":     mustToken(t, secret, "root", time.Hour),
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/machines", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, resp.Code)
		}
	}
}

func TestAuthMiddleware_ExemptPaths(t *testing.T) {
	handler := NewMiddleware([]byte("s"), NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})).Wrap(okHandler())

	for _, path := range []string{"/healthz", "/metrics", "/ingest/status-events"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestIssueToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, "cli", RoleOperator, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseJWT(token, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Role != "operator" || claims.Subject != "cli" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := IssueToken(secret, "cli", Role("root"), time.Hour); err == nil {
		t.Fatalf("expected invalid role error")
	}
}

func TestIngestAuthMiddleware(t *testing.T) {
	secret := []byte("ingest-secret")
	now := time.Unix(1_700_000_000, 0)
	mw := NewIngestAuthMiddleware(secret, 5*time.Minute)
	mw.Now = func() time.Time { return now }

	var gotBody string
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusAccepted)
	}))

	body := `{"machineId":1,"status":"RUN"}`
	send := func(ts int64, signature string) int {
		req := httptest.NewRequest(http.MethodPost, "/ingest/status-events", strings.NewReader(body)).WithContext(context.Background())
		stamp := strconv.FormatInt(ts, 10)
		req.Header.Set(HeaderIngestTimestamp, stamp)
		if signature == "" {
			signature = SignIngest(secret, stamp, []byte(body))
		}
		req.Header.Set(HeaderIngestSignature, signature)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := send(now.Unix(), ""); code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", code)
	}
	if gotBody != body {
		t.Fatalf("body not restored: %q", gotBody)
	}
	if code := send(now.Add(-10*time.Minute).Unix(), ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for skewed timestamp, got %d", code)
	}
	if code := send(now.Unix(), strings.Repeat("0", 64)); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", code)
	}

	req := httptest.NewRequest(http.MethodPost, "/ingest/status-events", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without headers, got %d", resp.Code)
	}
}

func mustToken(t *testing.T, secret []byte, role string, ttl time.Duration) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAuthMiddleware_MachineInfoEditsNeedAdmin(t *testing.T) {
	secret := []byte("test-secret")
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(okHandler())

	cases := []struct {
		role   string
		method string
		want   int
	}{
		{"viewer", http.MethodGet, http.StatusOK},
		{"viewer", http.MethodPut, http.StatusForbidden},
		{"operator", http.MethodPut, http.StatusForbidden},
		{"admin", http.MethodPut, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "/api/v1/machines/3/info", nil)
		req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, tc.role, time.Hour))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.role, tc.method, tc.want, resp.Code)
		}
	}
}

func TestPolicy_RequiredRole(t *testing.T) {
	policy := NewDefaultPolicy(nil, nil)
	cases := []struct {
		method string
		path   string
		want   Role
	}{
		{http.MethodGet, "/api/v1/stats/today", RoleViewer},
		{http.MethodGet, "/api/v1/machines/12/info", RoleViewer},
		{http.MethodPut, "/api/v1/machines/12/info", RoleAdmin},
		{http.MethodGet, "/api/v1/reports/daily.pdf", RoleOperator},
		{http.MethodDelete, "/api/v1/machines/12", RoleAdmin},
	}
	for _, tc := range cases {
		got, ok := policy.RequiredRole(httptest.NewRequest(tc.method, tc.path, nil))
		if !ok || got != tc.want {
			t.Fatalf("%s %s: expected %q, got %q (%v)", tc.method, tc.path, tc.want, got, ok)
		}
	}
	if _, ok := policy.RequiredRole(httptest.NewRequest(http.MethodGet, "/healthz", nil)); ok {
		t.Fatalf("non api path must not require a role")
	}
}

func TestParseRoleAndAllows(t *testing.T) {
	role, ok := ParseRole(" Admin ")
	if !ok || role != RoleAdmin {
		t.Fatalf("expected admin, got %q (%v)", role, ok)
	}
	if _, ok := ParseRole("root"); ok {
		t.Fatalf("unknown role accepted")
	}
	if !RoleOperator.Allows(RoleViewer) || RoleOperator.Allows(RoleAdmin) {
		t.Fatalf("operator must include viewer only")
	}
	if Role("").Allows(RoleViewer) || Role("root").Allows(Role("root")) {
		t.Fatalf("unknown roles must allow nothing")
	}
}

func TestAuthMiddleware_ChallengeHeader(t *testing.T) {
	handler := NewMiddleware([]byte("s"), NewDefaultPolicy(nil, nil)).Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats/daily", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if !strings.HasPrefix(resp.Header().Get("WWW-Authenticate"), "Bearer") {
		t.Fatalf("missing bearer challenge: %q", resp.Header().Get("WWW-Authenticate"))
	}
}

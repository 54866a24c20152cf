package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"tally/internal/config"
	"tally/internal/ledger"

	"github.com/pashagolub/pgxmock/v4"
)

func newTestServer(t *testing.T, token string) (*Server, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := ledger.NewService(mock, logger)
	return New(config.APIConfig{APIToken: token}, logger, svc, nil), mock
}

func doRequest(t *testing.T, s *Server, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	s, _ := newTestServer(t, "secret")
	rec := doRequest(t, s, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	s, mock := newTestServer(t, "secret")

	rec := doRequest(t, s, http.MethodGet, "/v1/users/7/balance", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/v1/users/7/balance", "wrong", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: expected 401, got %d", rec.Code)
	}

	mock.ExpectQuery("SELECT balance").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(25.0))
	rec = doRequest(t, s, http.MethodGet, "/v1/users/7/balance", "secret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestBalanceResponse(t *testing.T) {
	s, mock := newTestServer(t, "")

	mock.ExpectQuery("SELECT balance").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(25.0))

	rec := doRequest(t, s, http.MethodGet, "/v1/users/7/balance", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var got ledger.LeaderboardRow
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.UserID != 7 || got.Balance != 25 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAdjustUnknownUserIs404(t *testing.T) {
	s, mock := newTestServer(t, "")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO idempotency_keys").
		WithArgs(int64(404), "req-1", "adjust").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE users").
		WithArgs(10.0, int64(404)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	req := httptest.NewRequest(http.MethodPost, "/v1/users/404/adjust", strings.NewReader(`{"delta": 10}`))
	req.Header.Set("Idempotency-Key", "req-1")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSplitExcessAlreadyBalanced(t *testing.T) {
	s, mock := newTestServer(t, "")

	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(SUM(balance), 0)")).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(0.0))

	rec := doRequest(t, s, http.MethodPost, "/v1/excess/split", "", `{"targets": [1, 2]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var got struct {
		Total                 float64 `json:"total"`
		NothingToRedistribute bool    `json:"nothing_to_redistribute"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !got.NothingToRedistribute {
		t.Fatalf("expected nothing_to_redistribute, got %s", rec.Body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInvalidUserIDIs400(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := doRequest(t, s, http.MethodGet, "/v1/users/abc/balance", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestParseUserList(t *testing.T) {
	ids, err := parseUserList(" 1, 2,3 ")
	if err != nil {
		t.Fatalf("parseUserList: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Fatalf("unexpected ids: %v", ids)
	}

	if ids, err := parseUserList(""); err != nil || ids != nil {
		t.Fatalf("empty list should be nil, nil; got %v, %v", ids, err)
	}
	if _, err := parseUserList("1,x"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
	if _, err := parseUserList("0"); err == nil {
		t.Fatal("expected error for non-positive id")
	}
}

func TestQueryLimit(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{raw: "", want: 10},
		{raw: "5", want: 5},
		{raw: "-1", want: 10},
		{raw: "250", want: 100},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, "/v1/leaderboard?limit="+tc.raw, nil)
		if got := queryLimit(req); got != tc.want {
			t.Fatalf("limit %q: got %d want %d", tc.raw, got, tc.want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "Bearer abc", want: "abc"},
		{header: "bearer abc", want: "abc"},
		{header: "Basic abc", want: ""},
		{header: "", want: ""},
	}
	for _, tc := range tests {
		if got := bearerToken(tc.header); got != tc.want {
			t.Fatalf("header %q: got %q want %q", tc.header, got, tc.want)
		}
	}
}

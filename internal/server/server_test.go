package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func denyAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	ok := NewRouter(Handlers{}, Options{DB: pingerFunc(func(context.Context) error { return nil })})
	rec := do(t, ok, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	down := NewRouter(Handlers{}, Options{DB: pingerFunc(func(context.Context) error { return errors.New("conn refused") })})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, down, http.MethodGet, "/healthz", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := NewRouter(Handlers{}, Options{})
	rec := do(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	r := NewRouter(Handlers{}, Options{AdminAuth: denyAll})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/admin/settings"},
		{http.MethodPut, "/admin/settings/commissionSettings"},
		{http.MethodPost, "/admin/packages"},
		{http.MethodPost, "/admin/users/1/adjust"},
		{http.MethodPost, "/admin/deposits/approved"},
		{http.MethodGet, "/admin/events/7b1f0c1e-0000-4000-8000-000000000000"},
	} {
		rec := do(t, r, tc.method, tc.path, `{}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}

func TestUnknownRoute(t *testing.T) {
	r := NewRouter(Handlers{}, Options{})
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/v2/nothing", "").Code)
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "внутренняя ошибка")
}

func TestRateLimiterPerUser(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	defer rl.Close()

	var seen []string
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = append(seen, string(body))
		w.WriteHeader(http.StatusOK)
	}))

	click := `{"userId":7,"mintingType":"MANUAL"}`
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/minting/click", click).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/minting/click", click).Code)
	rec := do(t, h, http.MethodPost, "/v1/minting/click", click)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Другой пользователь со своим бюджетом
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/purchases", `{"buyerId":8,"packageId":1}`).Code)

	// Обработчик получает тело целиком
	require.Len(t, seen, 3)
	assert.Equal(t, click, seen[0])
}

func TestRateKeys(t *testing.T) {
	tests := []struct {
		name string
		body string
		user string
	}{
		{"userId", `{"userId":3}`, "addr:192.0.2.1|user:3"},
		{"buyerId", `{"buyerId":4,"packageId":9}`, "addr:192.0.2.1|user:4"},
		{"receiverId", `{"receiverId":5,"amount":"10"}`, "addr:192.0.2.1|user:5"},
		{"без пользователя", `{"packageId":9}`, ""},
		{"не JSON", `garbage`, ""},
		{"пустое тело", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = http.NoBody
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(http.MethodPost, "/v1/purchases", body)
			addr, user := rateKeys(req)
			assert.Equal(t, "addr:192.0.2.1", addr)
			assert.Equal(t, tt.user, user)

			rest, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(rest))
		})
	}
}

func clickFrom(remote string, userID int) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/minting/click",
		strings.NewReader(fmt.Sprintf(`{"userId":%d,"mintingType":"AUTO"}`, userID)))
	req.RemoteAddr = remote
	return req
}

// Перебор чужих ID с одного адреса упирается в бюджет адреса,
// а чужой адрес не тратит бюджет пользователя.
func TestRateLimiterAddressBudget(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	defer rl.Close()
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(req *http.Request) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for id := 1; id <= 2*addrShare; id++ {
		assert.Equal(t, http.StatusOK, serve(clickFrom("198.51.100.7:4000", id)), "id %d", id)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(clickFrom("198.51.100.7:4000", 100)))

	// Пользователь 1 с другого адреса: бюджет не тронут
	assert.Equal(t, http.StatusOK, serve(clickFrom("203.0.113.9:5000", 1)))
	assert.Equal(t, http.StatusOK, serve(clickFrom("203.0.113.9:5000", 1)))
	assert.Equal(t, http.StatusTooManyRequests, serve(clickFrom("203.0.113.9:5000", 1)))
}

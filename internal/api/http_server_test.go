package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"localservices/internal/config"
	"localservices/internal/database"
	"localservices/internal/events"
	"localservices/internal/models"
	"localservices/internal/repository"
	"localservices/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var slot = time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC)

type testEnv struct {
	db  *database.DB
	svc *service.BookingService
	ts  *httptest.Server
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedDirectory(t *testing.T, db *database.DB) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.SyncProviders(ctx, []models.Provider{
		{ID: "p1", DisplayName: "Pat's Pipes", City: "Edmonton", Categories: []string{"Plumbing"}},
		{ID: "p2", DisplayName: "Drain Kings", City: "Edmonton", Categories: []string{"Plumbing"}},
	}))
	require.NoError(t, db.SyncListings(ctx, []models.Listing{
		{ID: "R1", OwnerID: "p1", Name: "Water heater install", Category: "Plumbing", City: "Edmonton", PricePerHour: 95},
	}))
}

func newTestServer(t *testing.T, cfg config.APIConfig, db *database.DB) *HTTPServer {
	t.Helper()
	logger := zerolog.New(io.Discard)
	bus := events.NewEventBus()
	svc := service.NewBookingService(db, db, db, repository.NewMemoryAvailabilityStore(), bus, service.Options{}, &logger)
	watcher := service.NewWatcher(svc, bus, 1, &logger)
	return NewHTTPServer(&cfg, db, svc, watcher, &logger)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	seedDirectory(t, db)
	server := newTestServer(t, config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true},
	}, db)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{db: db, svc: server.svc, ts: ts}
}

func (e *testEnv) do(t *testing.T, method, path string, actor models.Actor, body string) *http.Response {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if actor.Role != "" {
		req.Header.Set(headerUserRole, actor.Role)
	}
	if actor.ID != "" {
		req.Header.Set(headerUserID, actor.ID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

var (
	alice = models.Actor{ID: "alice", Role: models.RoleUser}
	bob   = models.Actor{ID: "bob", Role: models.RoleUser}
	root  = models.Actor{ID: "root", Role: models.RoleAdmin}
)

func asProvider(id string) models.Actor {
	return models.Actor{ID: id, Role: models.RoleProvider}
}

func singleBody(start time.Time, minutes int) string {
	return fmt.Sprintf(`{"listing_id":"R1","customer_name":"Alice","start":%q,"duration_minutes":%d}`,
		start.Format(time.RFC3339), minutes)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/healthz", models.Actor{}, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/readyz", models.Actor{}, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyz_DBFail(t *testing.T) {
	db := newTestDB(t)
	server := newTestServer(t, config.APIConfig{}, db)
	db.Close()

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodOptions, "/api/v1/bookings", models.Actor{}, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCreateSingle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/bookings", alice, singleBody(slot, 120))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[models.Booking](t, resp)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, "alice", created.CustomerID)
	assert.Equal(t, 190.0, created.PriceQuote)

	resp = env.do(t, http.MethodPost, "/api/v1/bookings", bob, singleBody(slot.Add(time.Hour), 60))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "slot_unavailable", decodeBody[errorBody](t, resp).Error)

	resp = env.do(t, http.MethodPost, "/api/v1/bookings", bob, singleBody(slot.Add(2*time.Hour), 60))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestCreateSingle_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		actor  models.Actor
		body   string
		status int
		code   string
	}{
		{"zero duration", alice, singleBody(slot, 0), http.StatusBadRequest, "invalid_window"},
		{"too long", alice, singleBody(slot, 13*60), http.StatusBadRequest, "invalid_window"},
		{"guest", models.Actor{}, singleBody(slot, 60), http.StatusForbidden, "forbidden"},
		{"unknown role", models.Actor{ID: "x", Role: "owner"}, singleBody(slot, 60), http.StatusBadRequest, "invalid_identity"},
		{"role without id", models.Actor{Role: models.RoleUser}, singleBody(slot, 60), http.StatusBadRequest, "invalid_identity"},
		{"unknown listing", alice, `{"listing_id":"R9","start":"2026-06-01T14:00:00Z","duration_minutes":60}`, http.StatusNotFound, "not_found"},
		{"missing listing", alice, `{"start":"2026-06-01T14:00:00Z","duration_minutes":60}`, http.StatusBadRequest, "invalid_body"},
		{"unknown field", alice, `{"listing_id":"R1","room":"7"}`, http.StatusBadRequest, "invalid_body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/v1/bookings", tt.actor, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decodeBody[errorBody](t, resp).Error)
		})
	}
}

func TestBroadcastFlow(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/bookings/broadcast", alice,
		fmt.Sprintf(`{"category":"Plumbing","city":"Edmonton","start":%q,"duration_minutes":120,"price_quote":180}`,
			slot.Format(time.RFC3339)))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	result := decodeBody[service.BroadcastResult](t, resp)
	require.Len(t, result.Bookings, 2)
	assert.Equal(t, service.TierCategoryCity, result.Tier)

	winner := result.Bookings[1]
	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/status", winner.ID),
		asProvider(winner.ProviderID), `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	confirmed := decodeBody[models.Booking](t, resp)
	require.NotNil(t, confirmed.AcceptedProvider)
	assert.Equal(t, winner.ProviderID, confirmed.AcceptedProvider.ID)

	loser := result.Bookings[0]
	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/status", loser.ID),
		asProvider(loser.ProviderID), `{"status":"confirmed"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", decodeBody[errorBody](t, resp).Error)

	resp = env.do(t, http.MethodGet, "/api/v1/customers/alice/bookings?view=groups", alice, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	groups := decodeBody[struct {
		Groups []models.GroupView `json:"groups"`
	}](t, resp)
	require.Len(t, groups.Groups, 1)
	assert.Equal(t, models.StatusConfirmed, groups.Groups[0].Status)
	assert.Equal(t, winner.ID, groups.Groups[0].Booking.ID)

	resp = env.do(t, http.MethodPost, "/api/v1/groups/"+result.GroupID+"/cancel", alice, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cancelled := decodeBody[service.CancelGroupResult](t, resp)
	assert.Equal(t, []int64{loser.ID}, cancelled.Cancelled)
	assert.Equal(t, []int64{winner.ID}, cancelled.Skipped)

	resp = env.do(t, http.MethodPost, "/api/v1/groups/"+result.GroupID+"/cancel", bob, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/groups/missing/cancel", alice, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBroadcast_NoProviders(t *testing.T) {
	db := newTestDB(t)
	server := newTestServer(t, config.APIConfig{}, db)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	env := &testEnv{db: db, svc: server.svc, ts: ts}

	resp := env.do(t, http.MethodPost, "/api/v1/bookings/broadcast", alice,
		`{"category":"Plumbing","start":"2026-06-01T14:00:00Z","duration_minutes":60}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "no_providers", decodeBody[errorBody](t, resp).Error)
}

func TestChangeStatusAndVisibility(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/bookings", alice, singleBody(slot, 60))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	b := decodeBody[models.Booking](t, resp)
	path := fmt.Sprintf("/api/v1/bookings/%d", b.ID)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, path, alice, "").StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, path, asProvider("p1"), "").StatusCode)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, path, bob, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/bookings/9999", root, "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/bookings/abc", root, "").StatusCode)

	resp = env.do(t, http.MethodPost, path+"/status", alice, `{"status":"confirmed"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, path+"/status", alice, `{"status":"archived"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPost, path+"/status", alice, `{"status":"cancelled"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusCancelled, decodeBody[models.Booking](t, resp).Status)

	resp = env.do(t, http.MethodPost, path+"/status", alice, `{"status":"cancelled"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, path+"/status", root, `{"status":"confirmed"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestListEndpoints(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/bookings", alice, singleBody(slot, 60))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/customers/alice/bookings", alice, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[struct {
		Bookings []models.Booking `json:"bookings"`
	}](t, resp)
	assert.Len(t, list.Bookings, 1)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/v1/customers/alice/bookings", bob, "").StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/customers/alice/bookings", root, "").StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/providers/p1/bookings", asProvider("p1"), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list = decodeBody[struct {
		Bookings []models.Booking `json:"bookings"`
	}](t, resp)
	assert.Len(t, list.Bookings, 1)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/v1/providers/p1/bookings", asProvider("p2"), "").StatusCode)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/v1/providers/p1/bookings", alice, "").StatusCode)
}

func TestGetGroup(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/bookings/broadcast", alice,
		fmt.Sprintf(`{"category":"Plumbing","city":"Edmonton","start":%q,"duration_minutes":60}`,
			slot.Format(time.RFC3339)))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	result := decodeBody[service.BroadcastResult](t, resp)
	path := "/api/v1/groups/" + result.GroupID

	resp = env.do(t, http.MethodGet, path, alice, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	group := decodeBody[groupResponse](t, resp)
	assert.Equal(t, result.GroupID, group.GroupID)
	assert.Len(t, group.Bookings, 2)
	assert.Equal(t, models.StatusPending, group.View.Status)
	assert.Equal(t, 2, group.View.GroupSize)

	resp = env.do(t, http.MethodGet, path, asProvider("p2"), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	group = decodeBody[groupResponse](t, resp)
	require.Len(t, group.Bookings, 1, "a provider only sees its own copy")
	assert.Equal(t, "p2", group.Bookings[0].ProviderID)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, path, bob, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/groups/missing", root, "").StatusCode)
}

func TestProviderAvailability(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/providers/p1/availability"

	resp := env.do(t, http.MethodGet, path, asProvider("p1"), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[availabilityResponse](t, resp).Available)

	// confirming a single booking marks the provider busy
	resp = env.do(t, http.MethodPost, "/api/v1/bookings", alice, singleBody(slot, 60))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	b := decodeBody[models.Booking](t, resp)
	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/status", b.ID), asProvider("p1"), `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, path, asProvider("p1"), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeBody[availabilityResponse](t, resp).Available)

	resp = env.do(t, http.MethodPut, path, asProvider("p1"), `{"available":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, availabilityResponse{ProviderID: "p1", Available: true}, decodeBody[availabilityResponse](t, resp))

	resp = env.do(t, http.MethodGet, path, root, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[availabilityResponse](t, resp).Available)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPut, path, asProvider("p2"), `{"available":false}`).StatusCode)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, path, alice, "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, path, asProvider("p1"), `{}`).StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/providers/ghost/availability", root, "").StatusCode)
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/bookings", alice, singleBody(slot, 60))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/bookings/export?from=2026-06-01&to=2026-06-02", root, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "bookings_2026-06-01_to_2026-06-02.xlsx")

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/bookings/export?from=2026-06-01&to=2026-06-02", alice, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/bookings/export?from=2026-06-02&to=2026-06-01", root, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/bookings/export?from=yesterday&to=2026-06-01", root, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func readEvent(t *testing.T, reader *bufio.Reader) string {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
}

func TestCustomerStream(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.ts.URL+"/api/v1/customers/alice/bookings/stream", http.NoBody)
	require.NoError(t, err)
	req.Header.Set(headerUserID, "alice")
	req.Header.Set(headerUserRole, models.RoleUser)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	assert.Equal(t, "[]", readEvent(t, reader))

	created := env.do(t, http.MethodPost, "/api/v1/bookings", alice, singleBody(slot, 60))
	require.Equal(t, http.StatusCreated, created.StatusCode)

	var views []models.GroupView
	require.NoError(t, json.Unmarshal([]byte(readEvent(t, reader)), &views))
	require.Len(t, views, 1)
	assert.Equal(t, models.StatusPending, views[0].Status)
}

func TestStream_Forbidden(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/v1/customers/alice/bookings/stream", bob, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/v1/providers/p1/bookings/stream", asProvider("p2"), "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	db := newTestDB(t)
	server := newTestServer(t, config.APIConfig{
		Enabled:   true,
		HTTP:      config.APIHTTPConfig{Enabled: true},
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1},
	}, db)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	get := func() int {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/customers/alice/bookings", http.NoBody)
		req.Header.Set(headerUserID, "alice")
		req.Header.Set(headerUserRole, models.RoleUser)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get())
	assert.Equal(t, http.StatusTooManyRequests, get())

	// probes are never limited
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPServer_StartStop(t *testing.T) {
	db := newTestDB(t)
	server := newTestServer(t, config.APIConfig{HTTP: config.APIHTTPConfig{Enabled: true, Port: 0}}, db)
	assert.NoError(t, server.Shutdown(context.Background()))
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("wrap: %w", service.ErrInvalidWindow), http.StatusBadRequest, "invalid_window"},
		{service.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
		{service.ErrNoProvidersFound, http.StatusNotFound, "no_providers"},
		{service.ErrNotFound, http.StatusNotFound, "not_found"},
		{service.ErrForbidden, http.StatusForbidden, "forbidden"},
		{service.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		status, code := errorStatus(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

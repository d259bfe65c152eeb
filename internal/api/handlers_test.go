package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/transporter/internal/domain"
	"example.com/transporter/internal/persistence/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	handler := NewHandler(domain.NewService(store, store, store), nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createItem(t *testing.T, srv *httptest.Server, name string, weight float64) ItemView {
	t.Helper()
	resp := doJSON(t, srv, http.MethodPost, "/v1/items", map[string]any{"name": name, "weight": weight})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[ItemView](t, resp)
}

func createMover(t *testing.T, srv *httptest.Server, limit float64) MoverView {
	t.Helper()
	resp := doJSON(t, srv, http.MethodPost, "/v1/movers", map[string]any{"weight_limit": limit})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[MoverView](t, resp)
}

func TestOrbMissionOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	orb := createItem(t, srv, "Orb", 5)
	mover := createMover(t, srv, 10)
	require.Equal(t, "resting", mover.QuestState)
	require.Empty(t, mover.LoadedItems)

	resp := doJSON(t, srv, http.MethodPut, "/v1/movers/"+mover.MoverID+"/items", LoadItemsRequest{ItemIDs: []string{orb.ItemID}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	loaded := decode[LoadedMoverView](t, resp)
	require.Equal(t, "loading", loaded.QuestState)
	require.Len(t, loaded.LoadedItems, 1)
	require.Equal(t, "Orb", loaded.LoadedItems[0].Name)

	resp = doJSON(t, srv, http.MethodPost, "/v1/movers/"+mover.MoverID+"/start-mission", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "on-mission", decode[LoadedMoverView](t, resp).QuestState)

	resp = doJSON(t, srv, http.MethodPut, "/v1/movers/"+mover.MoverID+"/end-mission", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ended := decode[LoadedMoverView](t, resp)
	require.Equal(t, "resting", ended.QuestState)
	require.Empty(t, ended.LoadedItems)

	resp = doJSON(t, srv, http.MethodGet, "/v1/movers/leaderboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	board := decode[[]LeaderboardEntryView](t, resp)
	require.Equal(t, []LeaderboardEntryView{{MoverID: mover.MoverID, WeightLimit: 10, MissionsCompleted: 1}}, board)
}

func TestListsReturnCreatedRecords(t *testing.T) {
	srv, _ := newTestServer(t)
	createItem(t, srv, "Orb", 5)
	createItem(t, srv, "Feather", 0)
	createMover(t, srv, 3)

	resp := doJSON(t, srv, http.MethodGet, "/v1/items", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decode[[]ItemView](t, resp), 2)

	resp = doJSON(t, srv, http.MethodGet, "/v1/movers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decode[[]MoverView](t, resp), 1)
}

func TestErrorResponses(t *testing.T) {
	srv, _ := newTestServer(t)
	heavy := createItem(t, srv, "Anvil", 50)
	mover := createMover(t, srv, 10)
	onMission := createMover(t, srv, 10)
	resp := doJSON(t, srv, http.MethodPost, "/v1/movers/"+onMission.MoverID+"/start-mission", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing item name", http.MethodPost, "/v1/items", map[string]any{"weight": 1}, http.StatusBadRequest, "validation_failed"},
		{"negative weight", http.MethodPost, "/v1/items", map[string]any{"name": "x", "weight": -1}, http.StatusBadRequest, "validation_failed"},
		{"missing weight limit", http.MethodPost, "/v1/movers", map[string]any{}, http.StatusBadRequest, "validation_failed"},
		{"malformed body", http.MethodPost, "/v1/movers", "not-an-object", http.StatusBadRequest, "invalid_request"},
		{"empty item ids", http.MethodPut, "/v1/movers/" + mover.MoverID + "/items", map[string]any{"item_ids": []string{}}, http.StatusBadRequest, "validation_failed"},
		{"overweight", http.MethodPut, "/v1/movers/" + mover.MoverID + "/items", LoadItemsRequest{ItemIDs: []string{heavy.ItemID}}, http.StatusBadRequest, "validation_failed"},
		{"unknown item", http.MethodPut, "/v1/movers/" + mover.MoverID + "/items", LoadItemsRequest{ItemIDs: []string{uuid.NewString()}}, http.StatusNotFound, "not_found"},
		{"unknown mover", http.MethodPost, "/v1/movers/" + uuid.NewString() + "/start-mission", nil, http.StatusNotFound, "not_found"},
		{"malformed mover id", http.MethodPost, "/v1/movers/not-a-uuid/end-mission", nil, http.StatusNotFound, "not_found"},
		{"end while resting", http.MethodPost, "/v1/movers/" + mover.MoverID + "/end-mission", nil, http.StatusConflict, "invalid_state"},
		{"load while on mission", http.MethodPut, "/v1/movers/" + onMission.MoverID + "/items", LoadItemsRequest{ItemIDs: []string{heavy.ItemID}}, http.StatusConflict, "invalid_state"},
		{"unknown action", http.MethodPost, "/v1/movers/" + mover.MoverID + "/fly", nil, http.StatusNotFound, "not_found"},
		{"wrong method", http.MethodDelete, "/v1/items", nil, http.StatusMethodNotAllowed, "method_not_allowed"},
		{"bad leaderboard limit", http.MethodGet, "/v1/movers/leaderboard?limit=abc", nil, http.StatusBadRequest, "validation_failed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, srv, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, resp.StatusCode)
			body := decode[map[string]string](t, resp)
			require.Equal(t, tc.code, body["type"])
			require.NotEmpty(t, body["detail"])
		})
	}
}

type failingItems struct {
	domain.ItemRepository
}

func (failingItems) ListItems(context.Context) ([]domain.Item, error) {
	return nil, errors.New("pq: connection refused on 10.0.0.1")
}

func TestServerErrorsHideInternalDetail(t *testing.T) {
	store := memory.NewStore()
	handler := NewHandler(domain.NewService(failingItems{store}, store, store), nil)

	rr := httptest.NewRecorder()
	handler.items(rr, httptest.NewRequest(http.MethodGet, "/v1/items", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "10.0.0.1")
	require.Contains(t, rr.Body.String(), "server_error")
}

func TestActivityLogFailureSurfacesWarning(t *testing.T) {
	srv, store := newTestServer(t)
	mover := createMover(t, srv, 10)
	store.AppendErr = errors.New("log offline")

	resp := doJSON(t, srv, http.MethodPost, "/v1/movers/"+mover.MoverID+"/start-mission", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Warning"), domain.WarningActivityLogUnavailable)
	view := decode[LoadedMoverView](t, resp)
	require.Equal(t, "on-mission", view.QuestState)
	require.Equal(t, []string{domain.WarningActivityLogUnavailable}, view.Warnings)
}

func TestHealthz(t *testing.T) {
	rr := httptest.NewRecorder()
	healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

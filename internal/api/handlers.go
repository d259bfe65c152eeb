// Package api exposes HTTP handlers for the transporter service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/transporter/internal/domain"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  *slog.Logger
}

// NewHandler builds a Handler. A nil logger falls back to slog.Default.
func NewHandler(service *domain.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/items", h.items)
	mux.HandleFunc("/v1/movers", h.movers)
	mux.HandleFunc("/v1/movers/leaderboard", h.leaderboard)
	mux.HandleFunc("/v1/movers/", h.moverAction)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) items(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createItem(w, r)
	case http.MethodGet:
		h.listItems(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) movers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createMover(w, r)
	case http.MethodGet:
		h.listMovers(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// moverAction dispatches /v1/movers/{id}/{action}.
func (h *Handler) moverAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/movers/")
	moverID, action, ok := strings.Cut(rest, "/")
	if !ok || moverID == "" || action == "" || strings.Contains(action, "/") {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	switch action {
	case "items":
		h.loadItems(w, r, moverID)
	case "start-mission":
		h.writeLoadedMover(w, r, func() (*domain.LoadedMover, error) {
			return h.service.StartMission(r.Context(), moverID)
		})
	case "end-mission":
		h.writeLoadedMover(w, r, func() (*domain.LoadedMover, error) {
			return h.service.EndMission(r.Context(), moverID)
		})
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	item, err := h.service.CreateItem(r.Context(), domain.CreateItemInput{
		Name:   *req.Name,
		Weight: *req.Weight,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemView(*item))
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	views := make([]ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, toItemView(item))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) createMover(w http.ResponseWriter, r *http.Request) {
	var req CreateMoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	mover, err := h.service.CreateMover(r.Context(), domain.CreateMoverInput{WeightLimit: *req.WeightLimit})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMoverView(*mover))
}

func (h *Handler) listMovers(w http.ResponseWriter, r *http.Request) {
	movers, err := h.service.ListMovers(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	views := make([]MoverView, 0, len(movers))
	for _, mover := range movers {
		views = append(views, toMoverView(mover))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) loadItems(w http.ResponseWriter, r *http.Request, moverID string) {
	var req LoadItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	h.writeLoadedMover(w, r, func() (*domain.LoadedMover, error) {
		return h.service.LoadItems(r.Context(), moverID, req.ItemIDs)
	})
}

func (h *Handler) writeLoadedMover(w http.ResponseWriter, r *http.Request, run func() (*domain.LoadedMover, error)) {
	loaded, err := run()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	for _, warning := range loaded.Warnings {
		w.Header().Add("Warning", `199 transporter "`+warning+`"`)
	}
	writeJSON(w, http.StatusOK, toLoadedMoverView(*loaded))
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := h.service.Leaderboard(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	views := make([]LeaderboardEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, LeaderboardEntryView{
			MoverID:           entry.MoverID,
			WeightLimit:       entry.WeightLimit,
			MissionsCompleted: entry.MissionsCompleted,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// writeServiceError maps domain errors onto HTTP responses. Unknown errors
// are logged and reported without their text.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, domain.ErrVersionConflict):
		writeError(w, http.StatusConflict, "conflict", "mover was modified concurrently, retry the request")
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// CreateItemRequest is the payload for POST /v1/items.
type CreateItemRequest struct {
	Name   *string  `json:"name"`
	Weight *float64 `json:"weight"`
}

// Validate ensures request correctness.
func (r CreateItemRequest) Validate() error {
	if r.Name == nil || strings.TrimSpace(*r.Name) == "" {
		return errors.New("name is required")
	}
	if r.Weight == nil {
		return errors.New("weight is required")
	}
	if *r.Weight < 0 {
		return errors.New("weight must be >= 0")
	}
	return nil
}

// CreateMoverRequest is the payload for POST /v1/movers.
type CreateMoverRequest struct {
	WeightLimit *float64 `json:"weight_limit"`
}

// Validate ensures request correctness.
func (r CreateMoverRequest) Validate() error {
	if r.WeightLimit == nil {
		return errors.New("weight_limit is required")
	}
	if *r.WeightLimit < 0 {
		return errors.New("weight_limit must be >= 0")
	}
	return nil
}

// LoadItemsRequest is the payload for PUT /v1/movers/{id}/items.
type LoadItemsRequest struct {
	ItemIDs []string `json:"item_ids"`
}

// Validate ensures request correctness.
func (r LoadItemsRequest) Validate() error {
	if len(r.ItemIDs) == 0 {
		return errors.New("item_ids must be a non-empty array")
	}
	return nil
}

// ItemView exposes an item.
type ItemView struct {
	ItemID    string    `json:"item_id"`
	Name      string    `json:"name"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MoverView exposes a mover with its loaded item ids.
type MoverView struct {
	MoverID     string    `json:"mover_id"`
	WeightLimit float64   `json:"weight_limit"`
	QuestState  string    `json:"quest_state"`
	LoadedItems []string  `json:"loaded_items"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LoadedMoverView exposes a mover with its loaded items resolved.
type LoadedMoverView struct {
	MoverID     string     `json:"mover_id"`
	WeightLimit float64    `json:"weight_limit"`
	QuestState  string     `json:"quest_state"`
	LoadedItems []ItemView `json:"loaded_items"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Warnings    []string   `json:"warnings,omitempty"`
}

// LeaderboardEntryView is one ranked leaderboard row.
type LeaderboardEntryView struct {
	MoverID           string  `json:"mover_id"`
	WeightLimit       float64 `json:"weight_limit"`
	MissionsCompleted int64   `json:"missions_completed"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toItemView(item domain.Item) ItemView {
	return ItemView{
		ItemID:    item.ID,
		Name:      item.Name,
		Weight:    item.Weight,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

func toMoverView(mover domain.Mover) MoverView {
	loaded := mover.LoadedItems
	if loaded == nil {
		loaded = []string{}
	}
	return MoverView{
		MoverID:     mover.ID,
		WeightLimit: mover.WeightLimit,
		QuestState:  string(mover.QuestState),
		LoadedItems: loaded,
		CreatedAt:   mover.CreatedAt,
		UpdatedAt:   mover.UpdatedAt,
	}
}

func toLoadedMoverView(loaded domain.LoadedMover) LoadedMoverView {
	items := make([]ItemView, 0, len(loaded.Items))
	for _, item := range loaded.Items {
		items = append(items, toItemView(item))
	}
	return LoadedMoverView{
		MoverID:     loaded.ID,
		WeightLimit: loaded.WeightLimit,
		QuestState:  string(loaded.QuestState),
		LoadedItems: items,
		CreatedAt:   loaded.CreatedAt,
		UpdatedAt:   loaded.UpdatedAt,
		Warnings:    loaded.Warnings,
	}
}

package eventstore

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gymbooking/internal/pkg/response"
)

type Handler struct {
	store *EventStore
}

func NewHandler(store *EventStore) *Handler {
	return &Handler{store: store}
}

// Routes mounts the read-only journal endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/events", h.HandleStream)
	r.Get("/events/{id}", h.HandleHistory)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	events, err := h.store.LoadEvents(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, events)
}

func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.store.StreamEvents(r.Context(), after, limit)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, events)
}

// internal/schedule/handler.go
package schedule

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gymbooking/internal/domain"
	"gymbooking/internal/pkg/response"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the timetable endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/classes", h.HandleSchedule)
	r.Get("/classes", h.HandleList)
	r.Post("/classes/conflicts", h.HandleConflicts)
	r.Get("/classes/{id}", h.HandleGet)
	r.Get("/rooms", h.HandleRooms)
}

func (h *Handler) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, err)
		return
	}

	class, err := h.service.ScheduleClass(r.Context(), req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, NewClassView(class))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	class, err := h.service.GetClass(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, NewClassView(class))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var q ClassQuery
	values := r.URL.Query()
	if raw := values.Get("room_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, err)
			return
		}
		q.RoomID = id
	}
	if raw := values.Get("day"); raw != "" {
		day, err := ParseWeekday(raw)
		if err != nil {
			response.Error(w, err)
			return
		}
		q.Day = &day
	}
	q.Name = values.Get("q")

	classes, err := h.service.ListClasses(r.Context(), q)
	writeClasses(w, classes, err)
}

func (h *Handler) HandleConflicts(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, err)
		return
	}
	classes, err := h.service.Conflicts(r.Context(), req)
	writeClasses(w, classes, err)
}

func writeClasses(w http.ResponseWriter, classes []*domain.FitnessClass, err error) {
	if err != nil {
		response.Error(w, err)
		return
	}
	views := make([]ClassView, 0, len(classes))
	for _, c := range classes {
		views = append(views, NewClassView(c))
	}
	response.OK(w, views)
}

func (h *Handler) HandleRooms(w http.ResponseWriter, r *http.Request) {
	type roomView struct {
		ID       uuid.UUID `json:"id"`
		Name     string    `json:"name"`
		Capacity int       `json:"capacity"`
	}
	rooms := h.service.Rooms()
	out := make([]roomView, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, roomView{ID: room.ID(), Name: room.Name(), Capacity: room.Capacity()})
	}
	response.OK(w, out)
}

// internal/booking/handler.go
package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gymbooking/internal/auth"
	"gymbooking/internal/domain"
	"gymbooking/internal/pkg/response"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the booking and waitlist endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/bookings", h.HandleBook)
	r.Get("/bookings", h.HandleListByStatus)
	r.Get("/bookings/{id}", h.HandleGet)
	r.Post("/bookings/{id}/cancel", h.HandleCancel)
	r.Post("/bookings/{id}/attended", h.HandleAttended)
	r.Post("/bookings/{id}/no-show", h.HandleNoShow)
	r.Get("/members/{id}/bookings", h.HandleMemberBookings)
	r.Get("/classes/{id}/bookings", h.HandleClassBookings)
	r.Post("/classes/{id}/waitlist/process", h.HandleProcessWaitlist)
	r.Post("/waitlist", h.HandleJoinWaitlist)
	r.Delete("/waitlist/{id}", h.HandleLeaveWaitlist)
}

type memberClassRequest struct {
	MemberID uuid.UUID `json:"member_id"`
	ClassID  uuid.UUID `json:"class_id"`
}

func decodeMemberClass(r *http.Request) (memberClassRequest, error) {
	var req memberClassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, err
	}
	if req.MemberID == uuid.Nil || req.ClassID == uuid.Nil {
		return req, fmt.Errorf("member_id and class_id are required")
	}
	return req, nil
}

// allowedFor lets a token act only for its own member. Without a token
// (auth disabled) every request passes.
func allowedFor(r *http.Request, memberID uuid.UUID) bool {
	claimed, ok := auth.MemberFromContext(r.Context())
	return !ok || claimed == memberID
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func (h *Handler) HandleBook(w http.ResponseWriter, r *http.Request) {
	req, err := decodeMemberClass(r)
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	if !allowedFor(r, req.MemberID) {
		response.Error(w, domain.ErrUnauthorized)
		return
	}

	b, err := h.service.BookClass(r.Context(), req.MemberID, req.ClassID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, NewBookingView(b))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	b, err := h.service.GetBooking(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, NewBookingView(b))
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CancelBooking)
}

func (h *Handler) HandleAttended(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.MarkAttended)
}

func (h *Handler) HandleNoShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.MarkNoShow)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id uuid.UUID) (*domain.Booking, error)) {
	id, err := pathID(r)
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	b, err := apply(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, NewBookingView(b))
}

func (h *Handler) HandleListByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := domain.ParseBookingStatus(r.URL.Query().Get("status"))
	if err != nil {
		response.Error(w, err)
		return
	}
	bookings, err := h.service.ListBookingsByStatus(r.Context(), status)
	writeBookings(w, bookings, err)
}

func (h *Handler) HandleMemberBookings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	bookings, err := h.service.ListMemberBookings(r.Context(), id)
	writeBookings(w, bookings, err)
}

func (h *Handler) HandleClassBookings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	bookings, err := h.service.ListClassBookings(r.Context(), id)
	writeBookings(w, bookings, err)
}

func writeBookings(w http.ResponseWriter, bookings []*domain.Booking, err error) {
	if err != nil {
		response.Error(w, err)
		return
	}
	views := make([]BookingView, 0, len(bookings))
	for _, b := range bookings {
		views = append(views, NewBookingView(b))
	}
	response.OK(w, views)
}

func (h *Handler) HandleProcessWaitlist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	result, err := h.service.ProcessWaitlist(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	body := struct {
		*WaitlistResult
		Booking *BookingView `json:"booking,omitempty"`
	}{WaitlistResult: result}
	if result.Booking != nil {
		v := NewBookingView(result.Booking)
		body.Booking = &v
	}
	response.OK(w, body)
}

func (h *Handler) HandleJoinWaitlist(w http.ResponseWriter, r *http.Request) {
	req, err := decodeMemberClass(r)
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	if !allowedFor(r, req.MemberID) {
		response.Error(w, domain.ErrUnauthorized)
		return
	}

	entry, err := h.service.JoinWaitlist(r.Context(), req.MemberID, req.ClassID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, NewWaitlistEntryView(entry))
}

func (h *Handler) HandleLeaveWaitlist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	if err := h.service.LeaveWaitlist(r.Context(), id); err != nil {
		response.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

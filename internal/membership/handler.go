// internal/membership/handler.go
package membership

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gymbooking/internal/pkg/response"
)

type Handler struct {
	service Service
	now     func() time.Time
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

// Routes mounts the member endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/members", h.HandleRegister)
	r.Post("/members/login", h.HandleLogin)
	r.Get("/members/{id}", h.HandleGetMember)
	r.Put("/members/{id}/tier", h.HandleChangeTier)
	r.Put("/members/{id}/email", h.HandleChangeEmail)
	r.Post("/members/{id}/renew", h.HandleRenew)
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, err)
		return
	}

	session, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(w, err)
		return
	}

	body := struct {
		Member    MemberView `json:"member"`
		Token     string     `json:"token,omitempty"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	}{Member: NewMemberView(session.Member, h.now()), Token: session.Token}
	if session.Token != "" {
		body.ExpiresAt = &session.ExpiresAt
	}
	response.OK(w, body)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, err)
		return
	}

	member, err := h.service.RegisterMember(r.Context(), req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, NewMemberView(member, h.now()))
}

func (h *Handler) HandleGetMember(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	member, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, NewMemberView(member, h.now()))
}

func (h *Handler) HandleChangeTier(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	var req struct {
		Tier string `json:"membership_tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, err)
		return
	}

	member, err := h.service.ChangeTier(r.Context(), id, req.Tier)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, NewMemberView(member, h.now()))
}

func (h *Handler) HandleChangeEmail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, err)
		return
	}

	member, err := h.service.ChangeEmail(r.Context(), id, req.Email)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, NewMemberView(member, h.now()))
}

func (h *Handler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	member, err := h.service.RenewCredits(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, NewMemberView(member, h.now()))
}

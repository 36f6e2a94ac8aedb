package response

import (
	"encoding/json"
	"net/http"

	"gymbooking/internal/domain"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func OK(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusOK, payload)
}

// Error writes err with the status its domain code maps to.
func Error(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	JSON(w, StatusFor(code), ErrorEnvelope{Error: APIError{Message: err.Error(), Code: string(code)}})
}

// BadRequest is for payloads that never reached a use case.
func BadRequest(w http.ResponseWriter, err error) {
	JSON(w, http.StatusBadRequest, ErrorEnvelope{Error: APIError{Message: err.Error(), Code: "bad_request"}})
}

func StatusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidValue:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeClassFull, domain.CodeDuplicateBooking, domain.CodeAlreadyBooked,
		domain.CodeAlreadyWaitlisted, domain.CodeScheduleConflict, domain.CodeConflict, domain.CodeAlreadyExists:
		return http.StatusConflict
	case domain.CodeInsufficientCredits, domain.CodeNotCancellable, domain.CodeInvalidTransition,
		domain.CodeClassHasSpace:
		return http.StatusUnprocessableEntity
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

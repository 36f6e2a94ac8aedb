package auth

import (
	"net/http"
	"strings"

	"gymbooking/internal/domain"
	"gymbooking/internal/pkg/response"
)

// Middleware requires a valid bearer token and stores the member id in the
// request context. A disabled issuer lets every request through.
func Middleware(i *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !i.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				response.Error(w, domain.NewError(domain.CodeUnauthorized, "auth", "access token required", nil))
				return
			}

			claims, err := i.Validate(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				response.Error(w, domain.NewError(domain.CodeUnauthorized, "auth", err.Error(), err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithMember(r.Context(), claims.MemberID)))
		})
	}
}

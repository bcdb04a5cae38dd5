package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/reported-users/apiserver/internal/authz"
	"github.com/reported-users/apiserver/internal/services"
	"github.com/reported-users/apiserver/internal/store"
)

type contextKey string

const contextSubjectKey contextKey = "sub"

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Healthz is a liveness probe.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func subjectFromContext(ctx context.Context) (string, error) {
	subject, ok := ctx.Value(contextSubjectKey).(string)
	if !ok || strings.TrimSpace(subject) == "" {
		return "", errors.New("missing subject")
	}
	return subject, nil
}

// resolveActor turns the token subject stored in the request context
// into a fully resolved actor (account id + admin flag). The actor is
// then passed explicitly into services; business logic never reads the
// request context itself.
func resolveActor(r *http.Request, userService *services.UserService) (authz.Actor, error) {
	subject, err := subjectFromContext(r.Context())
	if err != nil {
		return authz.Actor{}, services.ErrUnauthenticated
	}
	return userService.Resolve(r.Context(), subject)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeDomainError maps the closed set of domain failures to transport
// statuses. Unknown errors become a generic 500 so internal detail
// never reaches clients.
//
// Authenticated-but-not-entitled account access answers 401;
// admin-gated routes answer 403.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, services.ErrUnauthenticated.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, services.ErrInvalidCredentials.Error())
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusUnauthorized, services.ErrForbidden.Error())
	case errors.Is(err, services.ErrAdminRequired):
		writeError(w, http.StatusForbidden, services.ErrAdminRequired.Error())
	case errors.Is(err, services.ErrReportAccess):
		writeError(w, http.StatusNotFound, services.ErrReportAccess.Error())
	case errors.Is(err, services.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, services.ErrEmailTaken.Error())
	case errors.Is(err, services.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, services.ErrInvalidStatus.Error())
	case errors.Is(err, services.ErrStorageDisabled):
		writeError(w, http.StatusServiceUnavailable, services.ErrStorageDisabled.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

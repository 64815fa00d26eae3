package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/tweeter-auth/internal/service"
	apierrors "github.com/pribylovaa/tweeter-auth/internal/transport/http/errors"
	"github.com/pribylovaa/tweeter-auth/internal/transport/http/middleware"
)

type listUsersResponse struct {
	Users []userResponse `json:"users"`
}

// ListUsers — только для admin (RequireRole в роутере).
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out := listUsersResponse{Users: make([]userResponse, 0, len(users))}
	for i := range users {
		out.Users = append(out.Users, userFromModel(&users[i]))
	}

	writeJSON(w, http.StatusOK, out)
}

type updateRoleRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type userEnvelope struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var in updateRoleRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	uid, err := uuid.Parse(in.UserID)
	if err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	user, err := h.svc.UpdateRole(r.Context(), uid, in.Role)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userEnvelope{Message: "user role updated", User: userFromModel(user)})
}

func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.IdentityFrom(r.Context())
	if actor == nil {
		apierrors.WriteAuthError(w, r, service.ErrMissingCredentials)
		return
	}

	uid, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	if err := h.svc.DeleteUser(r.Context(), actor, uid); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "user deleted successfully"})
}

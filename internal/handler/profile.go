package handler

import (
	"log/slog"
	"net/http"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/internal/service"
)

// ProfileHandler serves the caller's own profile
type ProfileHandler struct {
	profiles *service.ProfileService
	auth     *service.AuthService
	users    domain.UserRepository
	logger   *slog.Logger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profiles *service.ProfileService, authService *service.AuthService, users domain.UserRepository, logger *slog.Logger) *ProfileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileHandler{profiles: profiles, auth: authService, users: users, logger: logger}
}

// ProfileUpdateRequest edits any of the three forms of the profile page
type ProfileUpdateRequest struct {
	User *struct {
		FirstName *string `json:"firstName"`
		LastName  *string `json:"lastName"`
		Email     *string `json:"email"`
	} `json:"user,omitempty"`
	Profile *struct {
		AvatarURL *string `json:"avatarUrl"`
		Bio       *string `json:"bio"`
		Website   *string `json:"website"`
	} `json:"profile,omitempty"`
	Client *ClientPayload `json:"client,omitempty"`
}

// Get handles GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrReject(w, r)
	if claims == nil {
		return
	}
	h.render(w, r, claims.UserID)
}

// Update handles PUT /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrReject(w, r)
	if claims == nil {
		return
	}
	var req ProfileUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	user, err := h.users.GetByID(ctx, claims.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if req.User != nil {
		user, err = h.auth.UpdateIdentity(ctx, claims.UserID, service.IdentityUpdate{
			FirstName: req.User.FirstName,
			LastName:  req.User.LastName,
			Email:     req.User.Email,
		})
		if err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
	}

	if req.Profile != nil {
		_, err := h.profiles.Update(ctx, claims.UserID, service.ProfileUpdate{
			AvatarURL: req.Profile.AvatarURL,
			Bio:       req.Profile.Bio,
			Website:   req.Profile.Website,
		})
		if err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
	}

	if req.Client != nil {
		update, err := req.Client.toUpdate()
		if err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
		if _, err := h.profiles.UpdateClientData(ctx, user, update); err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
	}

	h.render(w, r, claims.UserID)
}

func (h *ProfileHandler) render(w http.ResponseWriter, r *http.Request, userID int64) {
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	view, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, ProfileResponse{
		User: newUserResponse(user),
		Profile: ProfileBody{
			AvatarURL:     view.Profile.AvatarURL,
			Bio:           view.Profile.Bio,
			Website:       view.Profile.Website,
			HasClientData: view.Profile.HasClientData(),
		},
		Client: newClientResponse(view.Client),
	})
}

package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/recipe-list/internal/apperror"
	"github.com/sakif/recipe-list/internal/auth"
	"github.com/sakif/recipe-list/internal/model"
	"github.com/sakif/recipe-list/internal/service"
)

// IdentityHandler serves registration, login and profiles.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister / HandleLogin / HandleLogout → account and session
//   - HandleMe                                    → the logged-in user
//   - HandleProfile / HandleUpdateProfile         → public profile, self edit
type IdentityHandler struct {
	identity *service.IdentityService
	recipes  *service.RecipeService
	tokens   *auth.TokenService
	remember time.Duration
	logger   *slog.Logger
}

func NewIdentityHandler(
	identity *service.IdentityService,
	recipes *service.RecipeService,
	tokens *auth.TokenService,
	rememberFor time.Duration,
	logger *slog.Logger,
) *IdentityHandler {
	return &IdentityHandler{
		identity: identity,
		recipes:  recipes,
		tokens:   tokens,
		remember: rememberFor,
		logger:   logger,
	}
}

// HandleRegister creates an account.
//
// HTTP: POST /api/register
// REQUEST BODY: {"username","email","password","passwordConfirm","aboutMe"}
// RESPONSE: 201 with the new user
func (h *IdentityHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.identity.Register(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
	Next       string `json:"next"`
}

type loginResponse struct {
	User *model.User `json:"user"`
	Next string      `json:"next"`
}

// HandleLogin verifies credentials and issues the session cookie.
//
// HTTP: POST /api/login
//
// REMEMBER ME:
// Without rememberMe the cookie has no Max-Age, so the browser drops it when
// it closes (the token inside still expires after auth.DefaultSessionTTL).
// With rememberMe both cookie and token live for the configured duration.
//
// OPEN REDIRECTS:
// "next" is echoed back for the client to navigate to, so it is reduced to
// a same-site relative path; anything else becomes "/".
func (h *IdentityHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.identity.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Info("login failed", slog.String("username", req.Username))
		writeError(w, h.logger, err)
		return
	}

	ttl := auth.DefaultSessionTTL
	if req.RememberMe {
		ttl = h.remember
	}
	token, err := h.tokens.GenerateWithDuration(user.ID, ttl)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	cookie := &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if req.RememberMe {
		cookie.MaxAge = int(h.remember.Seconds())
	}
	http.SetCookie(w, cookie)

	h.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.Bool("remember", req.RememberMe),
	)
	writeJSON(w, http.StatusOK, loginResponse{User: user, Next: safeNext(req.Next)})
}

// safeNext returns next if it is a relative path on this site, else "/".
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") ||
		strings.HasPrefix(next, "//") || strings.HasPrefix(next, `/\`) {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return next
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /api/logout
//
// The JWT itself stays valid until it expires; without the cookie the
// browser simply stops sending it.
func (h *IdentityHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the logged-in user.
//
// HTTP: GET /api/me (RequireAuth)
func (h *IdentityHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	user, err := h.identity.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type profileResponse struct {
	User          *model.User      `json:"user"`
	RecipeRows    [][]model.Recipe `json:"recipeRows"`
	EditPrivilege bool             `json:"editPrivilege"`
}

// HandleProfile shows a user with their recipes, newest first, in rows.
//
// HTTP: GET /api/users/{username} (OptionalAuth)
func (h *IdentityHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.GetUserByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	recipes, err := h.recipes.ListByAuthor(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	viewerID, _ := auth.UserIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, profileResponse{
		User:          user,
		RecipeRows:    service.RecipeRows(recipes, service.ProfileRowWidth),
		EditPrivilege: viewerID == user.ID,
	})
}

// HandleUpdateProfile edits the caller's own profile.
//
// HTTP: PUT /api/users/{username} (RequireAuth)
// REQUEST BODY: any subset of service.ProfileUpdate
func (h *IdentityHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	target, err := h.identity.GetUserByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if target.ID != userID {
		writeError(w, h.logger, apperror.Forbidden("you can only edit your own profile"))
		return
	}

	var upd service.ProfileUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.identity.UpdateProfile(r.Context(), userID, upd)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

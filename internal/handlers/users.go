package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/placehub/apiserver/internal/services"
	"github.com/placehub/apiserver/internal/storage"
	"github.com/placehub/apiserver/internal/store"
)

const (
	formFieldAvatar = "avatar"
	maxAvatarBytes  = 8 << 20
)

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// UserHandler provides HTTP handlers for account profiles.
type UserHandler struct {
	userService   *services.UserService
	avatars       *storage.Storage
	avatarBaseURL string
}

// NewUserHandler constructs a handler. avatars may be nil when no object
// storage is configured; the upload endpoint is then not registered.
func NewUserHandler(userService *services.UserService, avatars *storage.Storage, avatarBaseURL string) *UserHandler {
	return &UserHandler{
		userService:   userService,
		avatars:       avatars,
		avatarBaseURL: strings.TrimRight(avatarBaseURL, "/"),
	}
}

// UserRouter registers profile routes on the given router.
func UserRouter(
	r chi.Router,
	userService *services.UserService,
	avatars *storage.Storage,
	avatarBaseURL string,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewUserHandler(userService, avatars, avatarBaseURL)

	r.Get("/", handler.ListUsers)
	r.Route("/me", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", handler.Me)
		r.Patch("/", handler.UpdateProfile)
		r.Patch("/avatar", handler.UpdateAvatar)
		if avatars != nil {
			r.Post("/avatar", handler.UploadAvatar)
		}
	})
	r.Get("/{userID}", handler.GetUser)
}

type UpdateProfileRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=30"`
	About string `json:"about" validate:"required,min=2,max=30"`
}

type UpdateAvatarRequest struct {
	AvatarURL string `json:"avatar_url" validate:"required,http_url"`
}

// ListUsers returns every profile. Profiles are public-readable.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// GetUser returns one profile by id.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if !accountIDPattern.MatchString(id) {
		writeError(w, http.StatusBadRequest, "malformed user id")
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Me returns the authenticated caller's own profile.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.userService.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile mutates name and about on the caller's own record. The
// record to update comes from the verified identity, never the body.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateProfileRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), accountID, strings.TrimSpace(req.Name), strings.TrimSpace(req.About))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateAvatar sets the avatar URL on the caller's own record.
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateAvatarRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.UpdateAvatar(r.Context(), accountID, strings.TrimSpace(req.AvatarURL))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update avatar")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UploadAvatar accepts a multipart image, stores it in object storage,
// and persists its public URL through the same update path as
// UpdateAvatar. The previous stored object, if any, is removed.
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	file, contentType, err := avatarFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAvatarBytes+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read avatar")
		return
	}
	if len(data) > maxAvatarBytes {
		writeError(w, http.StatusBadRequest, "avatar too large")
		return
	}

	previous, err := h.userService.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	key := accountID + avatarExtensions[contentType]
	if err := h.avatars.Put(r.Context(), key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store avatar")
		return
	}

	avatarURL := fmt.Sprintf("%s/avatars/%s", h.avatarBaseURL, key)
	user, err := h.userService.UpdateAvatar(r.Context(), accountID, avatarURL)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update avatar")
		return
	}

	h.removePreviousAvatar(r, previous.AvatarURL, key)
	writeJSON(w, http.StatusOK, user)
}

// ServeAvatar streams a stored avatar object.
func (h *UserHandler) ServeAvatar(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "objectKey")
	if key == "" || strings.Contains(key, "/") {
		writeError(w, http.StatusBadRequest, "malformed object key")
		return
	}

	object, err := h.avatars.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "avatar not found")
		return
	}
	defer object.Close()

	for contentType, ext := range avatarExtensions {
		if strings.HasSuffix(key, ext) {
			w.Header().Set("Content-Type", contentType)
			break
		}
	}
	if _, err := io.Copy(w, object); err != nil {
		return
	}
}

// removePreviousAvatar deletes the prior stored object when it lives in
// our bucket and is not the object just written. Best effort.
func (h *UserHandler) removePreviousAvatar(r *http.Request, previousURL, currentKey string) {
	prefix := h.avatarBaseURL + "/avatars/"
	if !strings.HasPrefix(previousURL, prefix) {
		return
	}
	previousKey := strings.TrimPrefix(previousURL, prefix)
	if previousKey == "" || previousKey == currentKey {
		return
	}
	_ = h.avatars.Delete(r.Context(), previousKey)
}

func avatarFile(r *http.Request) (multipart.File, string, error) {
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		return nil, "", errors.New("invalid multipart form")
	}
	file, header, err := r.FormFile(formFieldAvatar)
	if err != nil {
		return nil, "", errors.New("avatar file is required")
	}
	contentType := header.Header.Get("Content-Type")
	if _, ok := avatarExtensions[contentType]; !ok {
		_ = file.Close()
		return nil, "", errors.New("unsupported avatar content type")
	}
	return file, contentType, nil
}

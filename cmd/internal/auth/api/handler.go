package authapi

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"reel/cmd/account"
	"reel/cmd/internal/auth/session"
	"reel/cmd/internal/media"
	"reel/cmd/security/password"
)

// Handler wires the user-facing auth endpoints to the account store and
// session service.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	sessions *session.Service
	store    account.Store
	uploader media.Uploader
	metrics  *Metrics

	policy     password.Config
	bcryptCost int
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithPasswordPolicy overrides the default password policy.
func WithPasswordPolicy(policy password.Config) HandlerOption {
	return func(h *Handler) {
		if h == nil {
			return
		}
		h.policy = policy
	}
}

// NewHandler constructs the auth API handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, store account.Store, uploader media.Uploader, metrics *Metrics, bcryptCost int, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if sessions == nil {
		return nil, errors.New("auth: nil session service")
	}
	if store == nil {
		return nil, errors.New("auth: nil account store")
	}
	if uploader == nil {
		uploader = media.NoopUploader{}
	}

	h := &Handler{
		log:        log,
		cfg:        cfg,
		sessions:   sessions,
		store:      store,
		uploader:   uploader,
		metrics:    metrics,
		policy:     password.DefaultConfig(),
		bcryptCost: bcryptCost,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/v1/users/register", h.handleRegister)
	mux.HandleFunc("/api/v1/users/login", h.handleLogin)
	mux.HandleFunc("/api/v1/users/refresh", h.handleRefresh)
	mux.HandleFunc("/api/v1/users/logout", h.handleLogout)
	mux.HandleFunc("/api/v1/users/me", h.handleMe)
	mux.HandleFunc("/api/v1/users/password", h.handleChangePassword)
	mux.HandleFunc("/api/v1/users/history", h.handleWatchHistory)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		h.metrics.observe("register", "bad_request")
		writeError(w, http.StatusBadRequest, "invalid_request", "multipart form required")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	fullName := strings.TrimSpace(r.FormValue("fullName"))
	username := strings.TrimSpace(r.FormValue("userName"))
	email := strings.TrimSpace(r.FormValue("email"))
	plainPassword := r.FormValue("password")
	if fullName == "" || username == "" || email == "" || strings.TrimSpace(plainPassword) == "" {
		h.metrics.observe("register", "bad_request")
		writeError(w, http.StatusBadRequest, "invalid_request", "fullName, userName, email and password are required")
		return
	}
	if err := h.policy.Validate(plainPassword); err != nil {
		h.metrics.observe("register", "bad_request")
		writeError(w, http.StatusBadRequest, "weak_password", err.Error())
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	// Check uniqueness before touching object storage so a duplicate
	// registration does not orphan uploaded objects. The store's unique
	// constraints remain the backstop for concurrent registrations.
	if _, _, err := h.store.GetForLogin(ctx, username, email); err == nil {
		h.metrics.observe("register", "conflict")
		writeError(w, http.StatusConflict, "conflict", "userName or email already exists")
		return
	} else if !account.IsNotFound(err) {
		h.metrics.observe("register", "error")
		h.log.Error("auth.register.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	avatarURL, err := h.uploadFormFile(r, "avatar", "avatars", now)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			h.metrics.observe("register", "bad_request")
			writeError(w, http.StatusBadRequest, "invalid_request", "avatar file is required")
			return
		}
		h.metrics.observe("register", "error")
		h.log.Error("auth.register.avatar_upload.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "upload_failed", "could not store avatar")
		return
	}

	var coverURL *string
	if url, err := h.uploadFormFile(r, "coverImage", "covers", now); err != nil {
		if !errors.Is(err, http.ErrMissingFile) {
			h.metrics.observe("register", "error")
			h.log.Error("auth.register.cover_upload.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "upload_failed", "could not store cover image")
			return
		}
	} else {
		coverURL = &url
	}

	acc, err := h.store.Create(ctx, account.CreateInput{
		Username:      username,
		Email:         email,
		FullName:      fullName,
		Password:      plainPassword,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
		BcryptCost:    h.bcryptCost,
		Now:           now,
	})
	if err != nil {
		switch {
		case account.IsConflict(err):
			h.metrics.observe("register", "conflict")
			writeError(w, http.StatusConflict, "conflict", "userName or email already exists")
		case account.IsInvalidInput(err):
			h.metrics.observe("register", "bad_request")
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		default:
			h.metrics.observe("register", "error")
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.metrics.observe("register", "ok")
	h.log.Info("auth.register.ok", "account_id", acc.ID)
	writeJSON(w, http.StatusCreated, registerResponse{User: toAccountResponse(acc)})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.metrics.observe("login", "bad_request")
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Password) == "" {
		h.metrics.observe("login", "bad_request")
		writeError(w, http.StatusBadRequest, "invalid_request", "password is required")
		return
	}

	acc, issued, err := h.sessions.Login(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case account.IsNotFound(err):
			h.metrics.observe("login", "not_found")
			writeError(w, http.StatusNotFound, "user_not_found", "user does not exist")
		case session.IsUnauthorized(err):
			h.metrics.observe("login", "unauthorized")
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		case account.IsInvalidInput(err):
			h.metrics.observe("login", "bad_request")
			writeError(w, http.StatusBadRequest, "invalid_request", "userName or email is required")
		default:
			h.metrics.observe("login", "error")
			h.log.Error("auth.login.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.metrics.observe("login", "ok")
	h.setSessionCookies(w, issued)
	writeJSON(w, http.StatusOK, loginResponse{
		User:    toAccountResponse(acc),
		Session: toSessionResponse(issued),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			h.metrics.observe("refresh", "bad_request")
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		refreshToken = h.refreshTokenFromCookie(r)
	}

	// A missing token is an authentication failure, not a malformed request:
	// the session service reports it as unauthorized ("no refresh token").
	issued, err := h.sessions.Refresh(r.Context(), refreshToken)
	if err != nil {
		if session.IsUnauthorized(err) {
			h.metrics.observe("refresh", "unauthorized")
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "refresh token is invalid or expired")
			return
		}
		h.metrics.observe("refresh", "error")
		h.log.Error("auth.refresh.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.metrics.observe("refresh", "ok")
	h.setSessionCookies(w, issued)
	writeJSON(w, http.StatusOK, refreshResponse{Session: toSessionResponse(issued)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	acc, ok := h.requireAuth(w, r)
	if !ok {
		h.metrics.observe("logout", "unauthorized")
		return
	}

	if err := h.sessions.Logout(r.Context(), acc.ID); err != nil {
		h.metrics.observe("logout", "error")
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.metrics.observe("logout", "ok")
	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	acc, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toAccountResponse(acc)})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	acc, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.CurrentPassword) == "" || strings.TrimSpace(req.NewPassword) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "currentPassword and newPassword are required")
		return
	}
	if err := h.policy.Validate(req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, "weak_password", err.Error())
		return
	}

	if err := h.sessions.ChangePassword(r.Context(), acc.ID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case session.IsUnauthorized(err):
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "current password is incorrect")
		case account.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid new password")
		default:
			h.log.Error("auth.change_password.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleWatchHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	acc, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req watchHistoryRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	itemID := strings.TrimSpace(req.ItemID)
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "itemId is required")
		return
	}

	if err := h.store.AppendWatchHistory(r.Context(), acc.ID, itemID, time.Now().UTC()); err != nil {
		if account.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "account not found")
			return
		}
		h.log.Error("auth.watch_history.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (account.Account, bool) {
	token := h.accessTokenFromRequest(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing access token")
		return account.Account{}, false
	}
	acc, err := h.sessions.Authenticate(r.Context(), token)
	if err != nil {
		if !session.IsUnauthorized(err) {
			h.log.Error("auth.authenticate.fail", "err", err)
		}
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid access token")
		return account.Account{}, false
	}
	return acc, true
}

// uploadFormFile streams a multipart file to object storage and returns its URL.
func (h *Handler) uploadFormFile(r *http.Request, field, prefix string, now time.Time) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	key := media.ObjectKey(prefix, now)
	return h.uploader.Upload(r.Context(), key, file, formFileContentType(header))
}

func formFileContentType(header *multipart.FileHeader) string {
	if header == nil {
		return ""
	}
	return strings.TrimSpace(header.Header.Get("Content-Type"))
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"sync"
)

const (
	minPasswordLength     = 8
	defaultDepartmentName = "General"
)

// AccountStore is the persistence the account endpoints need.
type AccountStore interface {
	Register(ctx context.Context, reg Registration) (*Identity, error)
	LookupCredentials(ctx context.Context, email string) (*Identity, string, error)
	GetIdentity(ctx context.Context, userID string) (*Identity, error)
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

// Handler handles authentication HTTP endpoints.
type Handler struct {
	tokenSvc   *TokenService
	store      AccountStore
	bcryptCost int

	// dummyHash is compared against when the email is unknown so both
	// login failures take the same time.
	dummyHash func() string
}

func NewHandler(tokenSvc *TokenService, store AccountStore, bcryptCost int) *Handler {
	return &Handler{
		tokenSvc:   tokenSvc,
		store:      store,
		bcryptCost: bcryptCost,
		dummyHash: sync.OnceValue(func() string {
			hash, _ := HashPassword("opsboard-unknown-account", bcryptCost)
			return hash
		}),
	}
}

type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	User         *Profile `json:"user,omitempty"`
}

// HandleRegister creates a company with its owner and signs them in.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	var req struct {
		CompanyName    string `json:"company_name"`
		DepartmentName string `json:"department_name"`
		Email          string `json:"email"`
		Password       string `json:"password"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.CompanyName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "company_name is required"})
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "a valid email is required"})
		return
	}
	if len(req.Password) < minPasswordLength {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password must be at least 8 characters"})
		return
	}
	if strings.TrimSpace(req.DepartmentName) == "" {
		req.DepartmentName = defaultDepartmentName
	}

	hash, err := HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "registration failed"})
		return
	}

	identity, err := h.store.Register(r.Context(), Registration{
		CompanyName:    req.CompanyName,
		DepartmentName: strings.TrimSpace(req.DepartmentName),
		Email:          req.Email,
		PasswordHash:   hash,
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "email already registered"})
			return
		}
		slog.ErrorContext(r.Context(), "registration failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "registration failed"})
		return
	}

	slog.InfoContext(r.Context(), "company registered",
		"company_id", identity.CompanyID,
		"user_id", identity.UserID,
	)
	h.issueTokens(w, r, http.StatusCreated, identity)
}

// HandleLogin exchanges email and password for a token pair.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	identity, hash, err := h.store.LookupCredentials(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			VerifyPassword(req.Password, h.dummyHash())
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": ErrInvalidCredentials.Error()})
			return
		}
		slog.ErrorContext(r.Context(), "credential lookup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}

	if !VerifyPassword(req.Password, hash) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": ErrInvalidCredentials.Error()})
		return
	}

	h.issueTokens(w, r, http.StatusOK, identity)
}

// HandleRefresh exchanges a refresh token for new access + refresh tokens.
// The user is reloaded so role and department changes take effect.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	claims, err := h.tokenSvc.ValidateToken(req.RefreshToken)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
		return
	}

	if claims.TokenType != TokenTypeRefresh {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh token required"})
		return
	}

	identity, err := h.store.GetIdentity(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
			return
		}
		slog.ErrorContext(r.Context(), "identity reload failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token refresh failed"})
		return
	}

	h.issueTokens(w, r, http.StatusOK, identity)
}

// HandleProfile returns the caller's account.
func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentity(r.Context())
	if identity == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	profile, err := h.store.GetProfile(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "profile lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) issueTokens(w http.ResponseWriter, r *http.Request, status int, identity *Identity) {
	accessToken, err := h.tokenSvc.CreateAccessToken(identity)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token creation failed"})
		return
	}

	refreshToken, err := h.tokenSvc.CreateRefreshToken(identity)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token creation failed"})
		return
	}

	profile, err := h.store.GetProfile(r.Context(), identity.UserID)
	if err != nil {
		slog.WarnContext(r.Context(), "profile lookup failed after sign-in", "user_id", identity.UserID, "error", err)
		profile = nil
	}

	writeJSON(w, status, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(h.tokenSvc.AccessTTL().Seconds()),
		User:         profile,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"vidshare/db"
	"vidshare/httputil"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const maxPasswordLen = 72 // bcrypt truncates at 72 bytes

const (
	accessTTL  = time.Hour
	refreshTTL = 7 * 24 * time.Hour
)

type contextKey string

// IdentityKey is the context key used to store the authenticated identity.
const IdentityKey contextKey = "identity"

// Identity describes the authenticated caller for the current request.
type Identity struct {
	UserID   string
	Username string
	IsStaff  bool
}

// ExtractIdentity returns the caller identity from the request context.
func ExtractIdentity(r *http.Request) (Identity, bool) {
	id, ok := r.Context().Value(IdentityKey).(Identity)
	return id, ok && id.UserID != ""
}

// Handler holds dependencies for authentication endpoints.
type Handler struct {
	DB        *db.CompatDB
	JWTSecret string
}

// RegisterRequest is the JSON body for POST /api/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates a new user account. AllowAny.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, 400, "invalid request body")
		return
	}
	if len(req.Username) < 3 || len(req.Password) < 8 {
		httputil.Error(w, 400, "username must be 3+ chars, password 8+ chars")
		return
	}
	if len(req.Password) > maxPasswordLen {
		httputil.Error(w, 400, "password must not exceed 72 characters")
		return
	}
	if !strings.Contains(req.Email, "@") || len(req.Email) < 5 {
		httputil.Error(w, 400, "a valid email address is required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		httputil.Error(w, 500, "internal error")
		return
	}

	userID := uuid.New().String()
	_, err = h.DB.ExecContext(r.Context(),
		`INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, req.Username, req.Email, string(hash), db.NowUTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "duplicate key") {
			httputil.Error(w, 409, "username or email already taken")
			return
		}
		httputil.Error(w, 500, "failed to create user")
		return
	}

	httputil.WriteJSON(w, 201, map[string]string{"id": userID, "username": req.Username})
}

// TokenRequest is the JSON body for POST /api/token.
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleToken authenticates a user and issues an access/refresh token pair.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, 400, "invalid request body")
		return
	}

	var id Identity
	var hash string
	var isStaff, isActive int
	err := h.DB.QueryRowContext(r.Context(),
		`SELECT id, username, password_hash, is_staff, is_active FROM users WHERE username = ? OR email = ?`,
		req.Username, req.Username,
	).Scan(&id.UserID, &id.Username, &hash, &isStaff, &isActive)
	if err != nil {
		httputil.Error(w, 401, "invalid credentials")
		return
	}
	id.IsStaff = isStaff == 1

	if isActive != 1 {
		httputil.Error(w, 401, "account disabled")
		return
	}
	if len(req.Password) > maxPasswordLen {
		httputil.Error(w, 401, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		httputil.Error(w, 401, "invalid credentials")
		return
	}

	h.writeTokenPair(w, id)
}

// RefreshRequest is the JSON body for POST /api/token/refresh.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// HandleRefresh exchanges a valid refresh token for a new token pair.
// Staff and active flags are re-read so revocations take effect here.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		httputil.Error(w, 400, "refresh token required")
		return
	}

	claims, err := parseToken(req.Refresh, h.JWTSecret)
	if err != nil {
		httputil.Error(w, 401, "invalid refresh token")
		return
	}
	if typ, _ := claims["typ"].(string); typ != "refresh" {
		httputil.Error(w, 401, "not a refresh token")
		return
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		httputil.Error(w, 401, "invalid refresh token")
		return
	}

	var id Identity
	var isStaff, isActive int
	err = h.DB.QueryRowContext(r.Context(),
		`SELECT id, username, is_staff, is_active FROM users WHERE id = ?`, sub,
	).Scan(&id.UserID, &id.Username, &isStaff, &isActive)
	if err != nil || isActive != 1 {
		httputil.Error(w, 401, "invalid refresh token")
		return
	}
	id.IsStaff = isStaff == 1

	h.writeTokenPair(w, id)
}

// ChangePasswordRequest is the JSON body for POST /api/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// HandleChangePassword verifies the current password and replaces it.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, _ := ExtractIdentity(r)

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, 400, "invalid request body")
		return
	}
	if len(req.NewPassword) < 8 || len(req.NewPassword) > maxPasswordLen {
		httputil.Error(w, 400, "new password must be 8-72 characters")
		return
	}

	var hash string
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT password_hash FROM users WHERE id = ?`, id.UserID).Scan(&hash); err != nil {
		httputil.Error(w, 404, "user not found")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.CurrentPassword)); err != nil {
		httputil.Error(w, 400, "current password is incorrect")
		return
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		httputil.Error(w, 500, "internal error")
		return
	}
	if _, err := h.DB.ExecContext(r.Context(),
		`UPDATE users SET password_hash = ? WHERE id = ?`, string(newHash), id.UserID); err != nil {
		httputil.Error(w, 500, "failed to update password")
		return
	}
	httputil.WriteJSON(w, 200, map[string]string{"detail": "password updated successfully"})
}

func (h *Handler) writeTokenPair(w http.ResponseWriter, id Identity) {
	access, err := GenerateAccessToken(id, h.JWTSecret)
	if err != nil {
		httputil.Error(w, 500, "failed to generate token")
		return
	}
	refresh, err := GenerateRefreshToken(id.UserID, h.JWTSecret)
	if err != nil {
		httputil.Error(w, 500, "failed to generate token")
		return
	}
	httputil.WriteJSON(w, 200, map[string]string{"access": access, "refresh": refresh})
}

// GenerateAccessToken creates a signed access JWT. The username and staff
// flag travel in the claims so clients can render role-aware UI without an
// extra round trip.
func GenerateAccessToken(id Identity, secret string) (string, error) {
	claims := jwt.MapClaims{
		"sub":      id.UserID,
		"username": id.Username,
		"staff":    id.IsStaff,
		"typ":      "access",
		"exp":      time.Now().Add(accessTTL).Unix(),
		"iat":      time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// GenerateRefreshToken creates a signed refresh JWT carrying only the subject.
func GenerateRefreshToken(userID, secret string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"typ": "refresh",
		"exp": time.Now().Add(refreshTTL).Unix(),
		"iat": time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseToken(tokenStr, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}
	return claims, nil
}

// identityFromRequest parses the Bearer token and re-reads the role flags
// from the store, so toggling is_staff or is_active takes effect on the
// very next request instead of at token expiry.
func (h *Handler) identityFromRequest(r *http.Request) (Identity, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return Identity{}, false
	}
	claims, err := parseToken(strings.TrimPrefix(authHeader, "Bearer "), h.JWTSecret)
	if err != nil {
		return Identity{}, false
	}
	if typ, _ := claims["typ"].(string); typ != "access" {
		return Identity{}, false
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, false
	}

	var id Identity
	var isStaff, isActive int
	err = h.DB.QueryRowContext(r.Context(),
		`SELECT id, username, is_staff, is_active FROM users WHERE id = ?`, sub,
	).Scan(&id.UserID, &id.Username, &isStaff, &isActive)
	if err != nil || isActive != 1 {
		return Identity{}, false
	}
	id.IsStaff = isStaff == 1
	return id, true
}

// Middleware requires a valid access token for an active account and puts
// the caller identity into the context.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.identityFromRequest(r)
		if !ok {
			httputil.Error(w, 401, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), IdentityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth injects the identity into the context if a valid token is
// present, but does not reject unauthenticated requests. Listing endpoints
// use this so anonymous callers get the public view.
func (h *Handler) OptionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := h.identityFromRequest(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), IdentityKey, id))
		}
		next(w, r)
	}
}

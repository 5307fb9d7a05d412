package proxy

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stubmill/simbridge/simbridge-srv/config"
)

const sessionTimeout = time.Hour

// adminAuth guards the admin API with JWT bearer tokens when enabled.
type adminAuth struct {
	cfg    *config.AdminConfig
	secret []byte
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func newAdminAuth(cfg *config.AdminConfig) *adminAuth {
	return &adminAuth{cfg: cfg, secret: []byte(cfg.JWTSecret)}
}

// registerLogin adds the login endpoint when auth is enabled.
func (a *adminAuth) registerLogin(mux *http.ServeMux) {
	if !a.cfg.AuthEnabled {
		return
	}
	mux.HandleFunc("POST /api/v2/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid login request", http.StatusBadRequest)
			return
		}
		if !a.credentialsValid(req.Username, req.Password) {
			adminLog.Warn("Failed admin login for user %q", req.Username)
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		token, err := a.issueToken(req.Username)
		if err != nil {
			adminLog.Error("Failed to sign admin token: %v", err)
			http.Error(w, "Failed to create session", http.StatusInternalServerError)
			return
		}
		writeJSON(w, loginResponse{Token: token})
	})
}

// wrap enforces bearer auth on every admin route except login.
func (a *adminAuth) wrap(next http.Handler) http.Handler {
	if !a.cfg.AuthEnabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/login" {
			next.ServeHTTP(w, r)
			return
		}
		if !a.authenticated(r) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *adminAuth) credentialsValid(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.cfg.Password)) == 1
	return userOK && passOK
}

func (a *adminAuth) issueToken(username string) (string, error) {
	claims := jwt.MapClaims{
		"username": username,
		"exp":      time.Now().Add(sessionTimeout).Unix(),
		"iat":      time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (a *adminAuth) authenticated(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		adminLog.Debug("Admin token validation failed: %v", err)
		return false
	}
	return token.Valid
}

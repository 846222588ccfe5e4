package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smartfit-coach/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	ctxUserID contextKey = "userID"
	ctxAdmin  contextKey = "admin"
)

// TokenService signs and verifies access tokens. The subject is the user id.
type TokenService struct {
	Secret    []byte
	Issuer    string
	AccessTTL time.Duration
}

// NewTokenService builds a TokenService from the JWT settings.
func NewTokenService(cfg *config.Config) TokenService {
	return TokenService{
		Secret:    []byte(cfg.JWTSecret),
		Issuer:    cfg.JWTIssuer,
		AccessTTL: cfg.JWTTTL,
	}
}

func (t TokenService) CreateAccessToken(userID int64, isAdmin bool) (string, int64, error) {
	now := time.Now().UTC()
	exp := now.Add(t.AccessTTL)
	claims := jwt.MapClaims{
		"iss":      t.Issuer,
		"sub":      strconv.FormatInt(userID, 10),
		"typ":      "access",
		"is_admin": isAdmin,
		"iat":      now.Unix(),
		"exp":      exp.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.Secret)
	return signed, exp.Unix(), err
}

func (t TokenService) ParseToken(tokenStr string) (*jwt.Token, jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return t.Secret, nil
	}, jwt.WithIssuer(t.Issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return token, claims, err
}

// Authenticate returns the user id and admin flag carried by an access token.
func (t TokenService) Authenticate(tokenStr string) (int64, bool, error) {
	token, claims, err := t.ParseToken(tokenStr)
	if err != nil {
		return 0, false, err
	}
	if !token.Valid || claims["typ"] != "access" {
		return 0, false, errors.New("not an access token")
	}
	sub, _ := claims["sub"].(string)
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, false, errors.New("invalid subject")
	}
	isAdmin, _ := claims["is_admin"].(bool)
	return userID, isAdmin, nil
}

// WithAuth requires a bearer token. Websocket clients may pass it as the token
// query parameter instead.
func WithAuth(tokenService TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := r.URL.Query().Get("token")
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				tokenStr = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			}
			if tokenStr == "" {
				WriteError(w, http.StatusUnauthorized, "Authentication failed")
				return
			}
			userID, isAdmin, err := tokenService.Authenticate(tokenStr)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "Authentication failed")
				return
			}
			ctx := context.WithValue(r.Context(), ctxUserID, userID)
			ctx = context.WithValue(ctx, ctxAdmin, isAdmin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func CurrentUserID(r *http.Request) int64 {
	if value, ok := r.Context().Value(ctxUserID).(int64); ok {
		return value
	}
	return 0
}

func IsAdmin(r *http.Request) bool {
	value, _ := r.Context().Value(ctxAdmin).(bool)
	return value
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r) {
			WriteError(w, http.StatusForbidden, "Not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

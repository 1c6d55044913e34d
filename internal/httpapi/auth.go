package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"parallelcamera/internal/capture"
	"parallelcamera/internal/config"
	"parallelcamera/internal/services"
)

// SessionHeader lets unauthenticated clients keep separate capture sessions.
const SessionHeader = "X-Session-Id"

var errUnauthorized = errors.New("unauthorized")

type authenticator struct {
	mode   string
	token  string
	secret []byte
}

func newAuthenticator(cfg config.Server) (*authenticator, error) {
	a := &authenticator{mode: cfg.AuthMode, token: cfg.APIToken, secret: []byte(cfg.JWTSecret)}
	switch a.mode {
	case config.AuthNone, "":
		a.mode = config.AuthNone
	case config.AuthToken:
		if a.token == "" {
			return nil, services.Wrap(services.ErrConfiguration, "httpapi", "auth", "server.api_token required for token auth", nil)
		}
	case config.AuthJWT:
		if len(a.secret) == 0 {
			return nil, services.Wrap(services.ErrConfiguration, "httpapi", "auth", "server.jwt_secret required for jwt auth", nil)
		}
	default:
		return nil, services.Wrap(services.ErrConfiguration, "httpapi", "auth", fmt.Sprintf("unsupported auth mode %q", a.mode), nil)
	}
	return a, nil
}

// Auth checks credentials and attaches the caller's session id. Preflights
// and the health probe are always let through.
func (a *authenticator) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		subject, err := a.authenticate(r)
		if err != nil {
			writeJSON(w, nil, http.StatusUnauthorized, errorResponse{Error: "unauthorized", ErrorKind: "unauthorized"})
			return
		}
		session := subject
		if session == "" {
			session = strings.TrimSpace(r.Header.Get(SessionHeader))
		}
		if session == "" {
			session = capture.DefaultSessionID
		}
		next.ServeHTTP(w, r.WithContext(services.WithSessionID(r.Context(), session)))
	})
}

// authenticate returns the JWT subject in jwt mode and "" otherwise.
func (a *authenticator) authenticate(r *http.Request) (string, error) {
	if a.mode == config.AuthNone {
		return "", nil
	}
	raw := bearerToken(r)
	if raw == "" {
		return "", errUnauthorized
	}
	if a.mode == config.AuthToken {
		if raw != a.token {
			return "", errUnauthorized
		}
		return "", nil
	}
	return a.parseJWT(raw)
}

func (a *authenticator) parseJWT(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", errUnauthorized, err)
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", errUnauthorized
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}

func sessionID(r *http.Request) string {
	if id, ok := services.SessionIDFromContext(r.Context()); ok {
		return id
	}
	return capture.DefaultSessionID
}

package auth

import (
	"errors"
	"log"
	"net/http"
	"strings"
)

// Middleware guards the dashboard API: it verifies the bearer JWT and checks
// the role claim against the role the policy requires for the route.
type Middleware struct {
	Secret []byte
	Policy Policy
	// Logger receives rejected tokens other than missing ones; nil is silent.
	Logger *log.Logger
}

// NewMiddleware constructs the dashboard auth middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{Secret: secret, Policy: policy}
}

// Wrap applies the policy to next. Routes the policy does not know pass through.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		required, guarded := Role(""), false
		if !m.Policy.IsExempt(r) {
			required, guarded = m.Policy.RequiredRole(r)
		}
		if !guarded {
			next.ServeHTTP(w, r)
			return
		}

		role, subject, err := m.identify(r)
		if err != nil {
			if m.Logger != nil && !errors.Is(err, ErrUnauthorized) {
				m.Logger.Printf("auth: %s %s rejected: %v", r.Method, r.URL.Path, err)
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="factory-monitor"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !role.Allows(required) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), role, subject)))
	})
}

func (m *Middleware) identify(r *http.Request) (Role, string, error) {
	claims, err := ParseJWT(bearerToken(r), m.Secret)
	if err != nil {
		return "", "", err
	}
	role, ok := ParseRole(claims.Role)
	if !ok {
		return "", "", ErrInvalidRole
	}
	return role, claims.Subject, nil
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

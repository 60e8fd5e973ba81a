package api

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/AaronLay10/SentientTrainer/internal/config"
	"github.com/AaronLay10/SentientTrainer/internal/events"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

type credential struct {
	user string
	pass string
	role Role
}

func (c credential) complete() bool {
	return c.user != "" && c.pass != ""
}

// credentials is nil when authentication is disabled.
var credentials []credential

// Principal is the authenticated caller of an operator endpoint.
type Principal struct {
	User string
	Role Role
}

type principalKey struct{}

// PrincipalFrom returns the caller stored by RequireRole.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// InitAuth installs the operator and admin credentials. The operator user
// comes from trainer.yaml (api.user), passwords from TRAINER_* secrets.
// Incomplete pairs are ignored; with none left the endpoints are open.
func InitAuth(operatorUser string, secrets config.Secrets) {
	credentials = nil
	for _, c := range []credential{
		{user: secrets.AdminUser, pass: secrets.AdminPassword, role: RoleAdmin},
		{user: operatorUser, pass: secrets.APIPassword, role: RoleOperator},
	} {
		if c.complete() {
			credentials = append(credentials, c)
		}
	}
	if len(credentials) == 0 {
		log.Printf("api: no credentials configured, operator endpoints are open")
	}
}

func IsAuthEnabled() bool {
	return len(credentials) > 0
}

// authenticate resolves the basic auth header. Without configured
// credentials every caller is an anonymous admin.
func authenticate(r *http.Request) (Principal, bool) {
	if !IsAuthEnabled() {
		return Principal{Role: RoleAdmin}, true
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return Principal{}, false
	}
	for _, c := range credentials {
		// Both halves are compared so the timing does not reveal the user.
		userOK := secureCompare(user, c.user)
		passOK := secureCompare(pass, c.pass)
		if userOK && passOK {
			return Principal{User: c.user, Role: c.role}, true
		}
	}
	return Principal{User: user}, false
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func deny(w http.ResponseWriter, r *http.Request, p Principal, status int) {
	reason := "unauthenticated"
	if status == http.StatusForbidden {
		reason = "forbidden"
	}
	events.Emit("warn", "operator.denied", "", map[string]interface{}{
		"path":   r.URL.Path,
		"remote": r.RemoteAddr,
		"user":   p.User,
		"reason": reason,
	})

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="Sentient Trainer"`)
	}
	http.Error(w, http.StatusText(status), status)
}

// RequireRole wraps a handler and requires one of the given roles. The
// caller is available to the handler through PrincipalFrom.
func RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := authenticate(r)
		if !ok {
			deny(w, r, p, http.StatusUnauthorized)
			return
		}

		for _, allowed := range allowedRoles {
			if p.Role == allowed {
				handler(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
				return
			}
		}
		deny(w, r, p, http.StatusForbidden)
	}
}

func RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin, RoleOperator)
}

func RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin)
}

// auditFields tags operator events with the caller.
func auditFields(r *http.Request, extra map[string]interface{}) map[string]interface{} {
	f := map[string]interface{}{"remote": r.RemoteAddr}
	if p, ok := PrincipalFrom(r.Context()); ok {
		f["role"] = string(p.Role)
		if p.User != "" {
			f["user"] = p.User
		}
	}
	for k, v := range extra {
		f[k] = v
	}
	return f
}

package api

import (
	"net/http"

	"github.com/go-chi/jwtauth"
	"github.com/lestrrat-go/jwx/jwt"
)

// AdminRole is the role claim value required by mutating routes
const AdminRole = "admin"

// NewJWTAuth returns an HS256 verifier for bearer tokens signed with secret
func NewJWTAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// RequireAdmin verifies the bearer token and admits only tokens whose role
// claim is "admin". A missing or invalid token is 401, a valid non-admin
// token is 403.
func RequireAdmin(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	verify := jwtauth.Verifier(ja)
	return func(next http.Handler) http.Handler {
		return verify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, _, err := jwtauth.FromContext(r.Context())
			if err != nil || token == nil {
				writeStatus(w, r, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			if roleOf(token) != AdminRole {
				writeStatus(w, r, http.StatusForbidden, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func roleOf(token jwt.Token) string {
	v, ok := token.Get("role")
	if !ok {
		return ""
	}
	role, _ := v.(string)
	return role
}

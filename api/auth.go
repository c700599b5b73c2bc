/*
auth.go - JWT actor identification

PURPOSE:
  The engine needs to know WHO calls each operation: the requesting
  employee on create/cancel, the approver on approve/reject. Identity
  arrives as a signed JWT bearer token; the middleware verifies it and
  stashes the actor's employee ID in the request context. Roles are NOT
  read from the token - the lifecycle always asks the directory, so a
  stale token cannot confer a revoked role.

TOKEN SHAPE:
  HS256, standard registered claims, subject = employee ID.

SEE ALSO:
  - server.go: middleware wiring
*/
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/vacation-engine/vacation"
)

type contextKey string

const actorKey contextKey = "actor"

// Authenticator verifies bearer tokens and annotates requests with the
// calling employee's identity.
type Authenticator struct {
	Secret []byte
}

// Middleware rejects requests without a valid bearer token and stores the
// token subject as the acting employee ID.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return a.Secret, nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			writeError(w, http.StatusUnauthorized, "invalid token", err)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, vacation.EmployeeID(claims.Subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IssueToken signs a token for an employee. Used by dev tooling and tests;
// production tokens come from the identity provider.
func (a *Authenticator) IssueToken(employeeID vacation.EmployeeID, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   string(employeeID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(a.Secret)
}

// actorFrom returns the authenticated employee ID from the context.
func actorFrom(ctx context.Context) (vacation.EmployeeID, bool) {
	actor, ok := ctx.Value(actorKey).(vacation.EmployeeID)
	return actor, ok
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/raushankrgupta/mystery-message/utils"
)

type contextKey string

const sessionKey contextKey = "session"

// sessionFromRequest extracts and validates the session token from either the
// "token" cookie or an Authorization: Bearer header. Returns nil when no valid
// session is present.
func sessionFromRequest(r *http.Request) *utils.SessionClaims {
	tokenStr := ""
	if cookie, err := r.Cookie("token"); err == nil {
		tokenStr = cookie.Value
	}
	if tokenStr == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenStr = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if tokenStr == "" {
		return nil
	}

	claims, err := utils.ValidateToken(tokenStr)
	if err != nil {
		return nil
	}
	return claims
}

// AuthMiddleware guards a handler: requests without a valid session token get
// a 401 envelope, everything else proceeds with the claims in context.
func AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}

		claims := sessionFromRequest(r)
		if claims == nil {
			utils.RespondError(w, nil, "Not Authenticated. You must be logged in to access this resource.", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// SessionFromContext returns the claims AuthMiddleware stored for the request.
func SessionFromContext(ctx context.Context) (*utils.SessionClaims, error) {
	claims, ok := ctx.Value(sessionKey).(*utils.SessionClaims)
	if !ok || claims == nil {
		return nil, fmt.Errorf("no session in context")
	}
	return claims, nil
}

// GateDecision computes where a request should be redirected, purely from
// whether the caller holds a valid session and which page it asked for.
// An empty result means pass through unchanged.
func GateDecision(authenticated bool, path string) string {
	if authenticated &&
		(strings.HasPrefix(path, "/sign-in") ||
			strings.HasPrefix(path, "/sign-up") ||
			strings.HasPrefix(path, "/verify")) {
		return "/dashboard"
	}
	if !authenticated &&
		(strings.HasPrefix(path, "/dashboard") || strings.HasPrefix(path, "/home")) {
		return "/sign-in"
	}
	return ""
}

// SessionGate redirects page requests based on authentication state:
// logged-in users away from the auth pages, logged-out users away from the
// protected pages. Everything else passes through.
func SessionGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authenticated := sessionFromRequest(r) != nil
		if target := GateDecision(authenticated, r.URL.Path); target != "" {
			http.Redirect(w, r, target, http.StatusTemporaryRedirect)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LatencyMiddleware logs the duration of each request
func LatencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)
		fmt.Printf("[LATENCY] %s %s - %v\n", r.Method, r.URL.Path, duration)
	})
}

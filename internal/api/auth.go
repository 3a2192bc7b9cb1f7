package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/susu3304/warikan/internal/token"
)

type ctxKey int

const claimsKey ctxKey = iota

// claimsFrom returns the session attached by authMiddleware.
func claimsFrom(ctx context.Context) *token.SessionClaims {
	c, _ := ctx.Value(claimsKey).(*token.SessionClaims)
	return c
}

// Auth handlers
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateRandomString(32)
	if err != nil {
		writeError(w, r, fmt.Errorf("generate oauth state: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"auth_url": a.oauthConfig.AuthCodeURL(state),
		"state":    state,
	})
}

// authError tags a login failure with the step that failed; the step is
// passed to the web UI as ?error=.
type authError struct {
	step string
	err  error
}

func (e *authError) Error() string { return e.step + ": " + e.err.Error() }
func (e *authError) Unwrap() error { return e.err }

func (a *API) authenticateUser(ctx context.Context, code string) (string, *DiscordUser, error) {
	tok, err := a.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return "", nil, &authError{"token_exchange_failed", err}
	}

	user, err := a.getDiscordUser(ctx, tok.AccessToken)
	if err != nil {
		return "", nil, &authError{"failed_to_get_user", err}
	}

	session, err := a.sessions.IssueSession(user.ID, getUsername(user), tok.AccessToken)
	if err != nil {
		return "", nil, &authError{"failed_to_create_token", err}
	}
	return session, user, nil
}

func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeMessage(w, http.StatusBadRequest, "missing code")
		return
	}

	session, user, err := a.authenticateUser(r.Context(), code)
	if err != nil {
		log.Printf("api: login failed: %v", err)
		step := "authentication_failed"
		var ae *authError
		if errors.As(err, &ae) {
			step = ae.step
		}
		http.Redirect(w, r, a.config.WebUIBaseURL+"/login?error="+url.QueryEscape(step), http.StatusSeeOther)
		return
	}

	log.Printf("api: %s (%s) logged in", getUsername(user), user.ID)
	// Token goes in the fragment so it never reaches server logs
	http.Redirect(w, r, a.config.WebUIBaseURL+"/login?success=true#token="+session, http.StatusSeeOther)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Middleware
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeMessage(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			writeMessage(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		claims, err := a.sessions.VerifySession(tokenString)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sameUserMiddleware only lets a session act on its own {user_id}.
func sameUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		if claims == nil || claims.UserID != mux.Vars(r)["user_id"] {
			writeMessage(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

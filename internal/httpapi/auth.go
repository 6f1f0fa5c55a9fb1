package httpapi

import (
	"context"
	"net/http"
	"strings"
)

// AccountResolver maps a bearer token to an account id.
type AccountResolver interface {
	Account(token string) (string, bool)
}

// StaticTokens is a fixed token table, typically loaded from configuration.
type StaticTokens map[string]string

// Account implements AccountResolver.
func (t StaticTokens) Account(token string) (string, bool) {
	id, ok := t[token]
	return id, ok && id != ""
}

type accountKey struct{}

// AccountFrom returns the account attached by RequireAccount.
func AccountFrom(ctx context.Context) string {
	id, _ := ctx.Value(accountKey{}).(string)
	return id
}

// RequireAccount rejects requests without a known bearer token.
func RequireAccount(resolver AccountResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			account, ok := resolver.Account(token)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), accountKey{}, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

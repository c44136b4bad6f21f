package middleware

import (
	"context"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	app_error "github.com/xenn00/teamchat/internal/errors"
	"github.com/xenn00/teamchat/internal/realtime"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type identityKey string

const IdentityKey identityKey = "identity"

// RequireIdentity resolves the bearer token and stores the caller's
// identity in the request context.
func RequireIdentity(resolver realtime.IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAppError(w, r, app_error.Auth("missing Authorization header"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
				writeAppError(w, r, app_error.Auth("invalid Authorization header format"))
				return
			}

			identity, err := resolver.Resolve(r.Context(), parts[1])
			if err != nil {
				appErr := app_error.From(err)
				if appErr.Kind == app_error.KindInternal {
					appErr = app_error.Auth("invalid or expired token").Wrap(err)
				}
				log.Debug().Err(err).Str("request_id", r.Header.Get(RequestIdHeader)).Msg("identity resolution failed")
				writeAppError(w, r, appErr)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFrom(ctx context.Context) (realtime.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(realtime.Identity)
	return identity, ok
}

func writeAppError(w http.ResponseWriter, r *http.Request, appErr *app_error.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Code)
	json.NewEncoder(w).Encode(map[string]any{
		"message": "Error occur",
		"errors": map[string]any{
			"code":    appErr.Code,
			"kind":    appErr.Kind,
			"field":   appErr.Field,
			"message": appErr.Message,
		},
		"data":       nil,
		"request_id": r.Header.Get(RequestIdHeader),
	})
}

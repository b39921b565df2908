package middleware

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"moflow/internal/validation"
	id "moflow/pkg/domain"
	"moflow/pkg/platform/httputil"
	"moflow/pkg/requestcontext"
)

// RequireSession binds the request to a UI session. A missing X-Session-ID
// starts a new session whose id is echoed back; a malformed one is rejected.
func RequireSession(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := r.Header.Get(HeaderSessionID)

			var sid id.SessionID
			if raw == "" {
				sid = id.SessionID(uuid.New())
			} else {
				parsed, err := id.ParseSessionID(raw)
				if err != nil {
					logger.WarnContext(ctx, "invalid session header",
						"error", err,
						"request_id", GetRequestID(ctx),
					)
					httputil.WriteError(w, err)
					return
				}
				sid = parsed
			}

			w.Header().Set(HeaderSessionID, sid.String())
			ctx = requestcontext.WithSessionID(ctx, sid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Language hands the Accept-Language preferences to message lookups.
func Language(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept := r.Header.Get("Accept-Language")
		if accept == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := validation.WithLanguages(r.Context(), accept)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

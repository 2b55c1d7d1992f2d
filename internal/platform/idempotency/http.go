package idempotency

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	dErrors "aidchain/pkg/domain-errors"
	"aidchain/pkg/platform/httputil"
	"aidchain/pkg/requestcontext"
)

// HeaderKey is the request header carrying the client's key.
const HeaderKey = "Idempotency-Key"

// HeaderReplayed marks a response served from the store.
const HeaderReplayed = "Idempotent-Replayed"

// Middleware replays the stored response for a repeated key. Keys are scoped
// by caller, method and path. Requests without a key pass through.
// Responses with status 500 and above are not stored so the client may retry.
func Middleware(store Store, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(key) > MaxKeyLength {
				httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "idempotency key is too long"))
				return
			}
			caller, _ := requestcontext.Caller(ctx)
			scoped := caller.Hex() + ":" + r.Method + ":" + r.URL.Path + ":" + key

			rec, err := store.Begin(ctx, scoped, ttl)
			switch {
			case errors.Is(err, ErrInProgress):
				httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "a request with this idempotency key is in progress"))
				return
			case err != nil:
				logger.ErrorContext(ctx, "idempotency store unavailable",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "idempotency store unavailable"))
				return
			case rec != nil:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(HeaderReplayed, "true")
				w.WriteHeader(rec.Status)
				_, _ = w.Write(rec.Body)
				return
			}

			var body bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			completed := false
			defer func() {
				if completed {
					return
				}
				// Panics and 5xx release the key so a retry runs again.
				if err := store.Release(ctx, scoped); err != nil {
					logger.WarnContext(ctx, "failed to release idempotency key",
						"request_id", requestcontext.RequestID(ctx),
						"error", err,
					)
				}
			}()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				return
			}
			if err := store.Complete(ctx, scoped, Record{Status: status, Body: body.Bytes()}, ttl); err != nil {
				logger.WarnContext(ctx, "failed to store idempotent response",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				return
			}
			completed = true
		})
	}
}

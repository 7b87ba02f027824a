package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/CreativeUnicorns/leafprefs"
)

// LoggerMiddleware returns a middleware that logs requests using the provided logger.
// A WebSocket upgrade is a leaf joining the bus: it is logged when it connects and
// when it leaves, with how long it stayed, instead of as a request.
func LoggerMiddleware(logger leafprefs.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			t0 := time.Now()
			reqID := middleware.GetReqID(r.Context())

			if websocket.IsWebSocketUpgrade(r) {
				logger.Info("Leaf connected to bus",
					"path", r.URL.Path,
					"remote", r.RemoteAddr,
					"request_id", reqID,
				)
				defer func() {
					logger.Info("Leaf left bus",
						"path", r.URL.Path,
						"remote", r.RemoteAddr,
						"connected_ms", time.Since(t0).Milliseconds(),
						"request_id", reqID,
					)
				}()
				next.ServeHTTP(w, r)
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("Served request",
					"method", r.Method,
					"path", r.URL.Path,
					"container", containerParam(r),
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"latency_ms", float64(time.Since(t0).Microseconds())/1000.0,
					"request_id", reqID,
				)
			}()
			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}

// containerParam returns the routed container, empty outside the values routes.
func containerParam(r *http.Request) string {
	return chi.URLParam(r, "container")
}

package handler

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/inventory/internal/auth"
	"github.com/rl1809/inventory/internal/core/service"
)

type loggerKey struct{}

// loggerFrom returns the request-scoped logger installed by RequestLogger.
func loggerFrom(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// RequestLogger tags a logger with the chi request ID, stores it in the
// context and logs one line per request. Wire middleware.RequestID first.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := base.With(zap.String("request_id", middleware.GetReqID(r.Context())))
			r = r.WithContext(context.WithValue(r.Context(), loggerKey{}, reqLog))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			reqLog.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
			)
		})
	}
}

// Recoverer turns a panic into a 500 envelope and logs the stack.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				loggerFrom(r.Context()).Error("panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				fail(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Authenticate requires a valid bearer token and stores its owner in the context.
func Authenticate(tokens *auth.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(token) == "" {
				fail(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			owner, err := tokens.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				loggerFrom(r.Context()).Debug("rejected token", zap.Error(err))
				fail(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := auth.WithOwner(r.Context(), owner)
			ctx = service.WithRequestMeta(ctx, service.RequestMeta{
				IPAddress: clientIP(r),
				UserAgent: r.UserAgent(),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP strips the port from RemoteAddr, which middleware.RealIP may
// already have replaced with a forwarded address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

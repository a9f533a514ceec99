package observability

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/starrysand/api/internal/platform/httpx"
	"github.com/starrysand/api/internal/platform/requestctx"
)

const sessionRouteParam = "sessionID"

// InjectLoggerMiddleware places logger on every request context.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// RequestLogOption customises RequestLoggerMiddleware.
type RequestLogOption func(*requestLogConfig)

type requestLogConfig struct {
	duration metric.Float64Histogram
}

// WithRequestMetrics records request latency, labelled by route, method and status,
// on meter. Instrument creation errors disable the histogram.
func WithRequestMetrics(meter metric.Meter) RequestLogOption {
	return func(cfg *requestLogConfig) {
		if meter == nil {
			return
		}
		hist, err := meter.Float64Histogram("starrysand.http.server.duration",
			metric.WithUnit("ms"),
			metric.WithDescription("HTTP request latency"),
		)
		if err == nil {
			cfg.duration = hist
		}
	}
}

// RequestLoggerMiddleware writes one "request completed" entry per request. The
// order session id is read from the matched route after the handler has run, so
// the middleware can sit above the router.
func RequestLoggerMiddleware(opts ...RequestLogOption) func(http.Handler) http.Handler {
	var cfg requestLogConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			entry := newAccessLog(r)
			r = r.WithContext(requestctx.WithLogger(r.Context(), entry.logger))
			recorder := newResponseRecorder(w)

			defer func() {
				if rec := recover(); rec != nil {
					entry.finish(r, recorder, true, cfg.duration)
					panic(rec)
				}
				entry.finish(r, recorder, false, cfg.duration)
			}()
			next.ServeHTTP(recorder, r)
		})
	}
}

type accessLog struct {
	logger *zap.Logger
	start  time.Time
}

func newAccessLog(r *http.Request) accessLog {
	ctx := r.Context()
	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(ctx)),
		zap.String("method", SanitizeMethod(r.Method)),
		zap.String("trace_id", requestctx.TraceID(ctx)),
	}
	if ip := remoteIP(r); ip != "" {
		fields = append(fields, zap.String("remote_ip", ip))
	}
	return accessLog{logger: requestctx.Logger(ctx).With(fields...), start: time.Now()}
}

func (a accessLog) finish(r *http.Request, recorder *responseRecorder, panicked bool, duration metric.Float64Histogram) {
	latency := time.Since(a.start)
	status := recorder.Status()
	if panicked && status < http.StatusInternalServerError {
		status = http.StatusInternalServerError
	}
	route := SanitizeRoute(routePattern(r))

	annotateSpan(trace.SpanFromContext(r.Context()), route, status)
	if duration != nil {
		duration.Record(context.WithoutCancel(r.Context()), float64(latency.Microseconds())/1000,
			metric.WithAttributes(
				attribute.String("http.route", route),
				attribute.String("http.method", SanitizeMethod(r.Method)),
				attribute.Int("http.status_code", status),
			))
	}

	fields := []zap.Field{
		zap.String("route", route),
		zap.Int("status", status),
		zap.Duration("latency", latency),
		zap.Int64("bytes", recorder.BytesWritten()),
	}
	if id := routeSessionID(r); id != "" {
		fields = append(fields, zap.String("session_id", id))
	}
	if ua := r.UserAgent(); ua != "" {
		fields = append(fields, zap.String("user_agent", sanitizeString(ua, 128)))
	}

	switch {
	case panicked || status >= http.StatusInternalServerError:
		a.logger.Error("request completed", fields...)
	case status >= http.StatusBadRequest:
		a.logger.Warn("request completed", fields...)
	default:
		a.logger.Info("request completed", fields...)
	}
}

// RecoveryMiddleware turns a panic into a logged stack trace and a 500 envelope.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func RecoveryMiddleware(fallback *zap.Logger) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				ctx := r.Context()
				logger := requestctx.Logger(ctx)
				if !logger.Core().Enabled(zap.ErrorLevel) {
					logger = fallback
				}
				logger.Error("panic recovered", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
				httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func annotateSpan(span trace.Span, route string, status int) {
	if span == nil || !span.IsRecording() {
		return
	}
	span.SetAttributes(semconv.HTTPResponseStatusCode(status), semconv.HTTPRoute(route))
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
		return
	}
	span.SetStatus(codes.Ok, "")
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func routeSessionID(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return SanitizeSessionID(rc.URLParam(sessionRouteParam))
	}
	return ""
}

func remoteIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return sanitizeString(addr, 64)
}

// responseRecorder tracks status and size while passing writes through.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w}
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) BytesWritten() int64 {
	return r.bytes
}

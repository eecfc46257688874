package api

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func (s *Server) withTracing(next http.Handler) http.Handler {
	if s.tracer == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		spanName := r.Method + " " + routeLabel(r.URL.Path)
		ctx, span := s.tracer.Start(r.Context(), spanName, trace.WithSpanKind(trace.SpanKindServer))
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", routeLabel(r.URL.Path)),
			attribute.String("http.target", r.URL.Path),
		)
		if r.ContentLength > 0 {
			// Media bodies dominate request size, so the length is worth a
			// span attribute on its own.
			span.SetAttributes(attribute.Int64("media.request_bytes", r.ContentLength))
		}
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// annotateMediaSpan tags the active span with the resolved media kind; the
// upload and transform handlers call it once the kind is known.
func annotateMediaSpan(ctx context.Context, kind string, effectCount int) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("media.kind", kind))
	if effectCount > 0 {
		span.SetAttributes(attribute.Int("media.effects_requested", effectCount))
	}
}

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/dvmax/mediaforge/internal/domain"
)

type subjectKey struct{}

// Subject returns the authenticated caller recorded by the auth middleware.
func Subject(ctx context.Context) string {
	if subject, ok := ctx.Value(subjectKey{}).(string); ok {
		return subject
	}
	return ""
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requiresAuth(r) {
			next.ServeHTTP(w, r)
			return
		}

		subject, err := s.verifier.Verify(r.Context(), bearerToken(r))
		if err != nil {
			if domain.CodeOf(err) != domain.CodeUnauthorized {
				s.logger.Printf("identity provider check failed err=%v", err)
			}
			writeError(w, domain.WrapError(domain.CodeUnauthorized, "please log in to use the media service", err))
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey{}, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requiresAuth(r *http.Request) bool {
	switch {
	case strings.HasPrefix(r.URL.Path, "/healthz"), strings.HasPrefix(r.URL.Path, "/metrics"):
		return false
	default:
		return true
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

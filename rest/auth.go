package rest

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/evergreen-ci/gimlet"
	"github.com/netperch/perch"
)

// AuthOptions configures the token authentication middleware. When
// Disabled is set every request is accepted, which is intended for
// local development only.
type AuthOptions struct {
	Token    string
	Disabled bool
}

type tokenAuthMiddleware struct {
	opts AuthOptions
}

// NewTokenAuthMiddleware returns middleware that rejects requests that
// do not carry the configured bearer token, either as an Authorization
// header using the Bearer scheme or in the X-Api-Key header.
func NewTokenAuthMiddleware(opts AuthOptions) gimlet.Middleware {
	return &tokenAuthMiddleware{opts: opts}
}

func (m *tokenAuthMiddleware) ServeHTTP(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	if m.opts.Disabled {
		next(rw, r)
		return
	}

	token := extractToken(r)
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(m.opts.Token)) != 1 {
		gimlet.WriteJSONResponse(rw, http.StatusUnauthorized, gimlet.ErrorResponse{
			StatusCode: http.StatusUnauthorized,
			Message:    "invalid or missing credentials",
		})
		return
	}

	next(rw, r)
}

func extractToken(r *http.Request) string {
	if header := r.Header.Get(perch.AuthHeader); header != "" {
		if strings.HasPrefix(header, perch.BearerSchemePrefix) {
			return strings.TrimSpace(strings.TrimPrefix(header, perch.BearerSchemePrefix))
		}
		return ""
	}

	return strings.TrimSpace(r.Header.Get(perch.APIKeyHeader))
}

package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/timgluz/autoprocess/response"
	"github.com/timgluz/autoprocess/secret"
)

var (
	ErrMissingToken      = fmt.Errorf("missing bearer token")
	ErrUnsupportedScheme = fmt.Errorf("unsupported authorization scheme")
	ErrInvalidToken      = fmt.Errorf("invalid bearer token")
	ErrAuthNotReady      = fmt.Errorf("token store is not ready")
)

// BearerAuth lets requests through whose Authorization header carries a
// token known to secretStore. Failures are rendered as JSON errors.
func BearerAuth(h httprouter.Handle, secretStore secret.Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token, err := bearerToken(r.Header.Get("Authorization"))
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			status := http.StatusUnauthorized
			if errors.Is(err, ErrUnsupportedScheme) {
				status = http.StatusBadRequest
			}
			response.RenderError(w, err, status)
			return
		}

		if secretStore == nil || !secretStore.IsReady() {
			response.RenderError(w, ErrAuthNotReady, http.StatusInternalServerError)
			return
		}

		if _, err := secretStore.Get(token); err != nil {
			if errors.Is(err, secret.ErrSecretNotFound) {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				response.RenderError(w, ErrInvalidToken, http.StatusUnauthorized)
				return
			}

			response.RenderFatal(w, fmt.Errorf("token lookup failed: %w", err))
			return
		}

		h(w, r, ps)
	}
}

// bearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}

	scheme, token, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "bearer") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/focusms/server-go/internal/model"
	"github.com/focusms/server-go/internal/repository"
	"github.com/focusms/server-go/internal/util"
)

type contextKey string

const OwnerContextKey contextKey = "owner"

// DeviceIDHeader carries the caller's device identifier. Anonymous requests
// are scoped by it; authenticated requests may still send it so the
// device-local counter and settings stay reachable.
const DeviceIDHeader = "X-Device-ID"

// Device ids become directory names in the local store, so the charset is
// strict and the first character must be alphanumeric. That keeps "." and
// ".." from ever naming a device.
var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

func GetOwner(ctx context.Context) (model.Owner, bool) {
	owner, ok := ctx.Value(OwnerContextKey).(model.Owner)
	return owner, ok
}

// IdentityMiddleware resolves each request to an Owner: a bearer token maps
// to an authenticated user via the external auth system's token table, a
// device id header maps to an anonymous device. Neither is a 401.
type IdentityMiddleware struct {
	users repository.UserRepository // nil when the remote store is unconfigured
}

func NewIdentityMiddleware(users repository.UserRepository) *IdentityMiddleware {
	return &IdentityMiddleware{users: users}
}

func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.Header.Get(DeviceIDHeader)
		if deviceID != "" && !deviceIDPattern.MatchString(deviceID) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "Invalid device id",
			})
			return
		}

		token := extractToken(r)

		var owner model.Owner
		switch {
		case token != "":
			if m.users == nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"error": "Remote session store is not configured",
				})
				return
			}

			user, err := m.users.FindByTokenHash(r.Context(), util.HashToken(token))
			if err != nil {
				log.Error().Err(err).Msg("identity middleware: database error")
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error": "Authentication failed",
				})
				return
			}
			if user == nil {
				log.Warn().Msg("identity middleware: invalid token attempt")
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "Invalid token",
				})
				return
			}

			owner = model.UserOwner(user.ID)
			owner.DeviceID = deviceID

		case deviceID != "":
			owner = model.AnonymousOwner(deviceID)

		default:
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing authentication token or device id",
			})
			return
		}

		ctx := context.WithValue(r.Context(), OwnerContextKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

package dispatch

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"skeleton/pkg/auth"
	"skeleton/pkg/permission"
)

// RequirePermission guards non-dispatched routes with the same
// authentication rules and error responses as the dispatcher.
func RequirePermission(perms permission.Checker, perm string, rs Responder, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.UserFromContext(r.Context())
			var e *Error
			switch {
			case !ok:
				e = newError(Unauthenticated, nil)
			case strings.TrimSpace(user.UserID) == "":
				e = newError(InvalidUser, nil)
			default:
				allowed, err := perms.Has(r.Context(), perm, user)
				if err != nil {
					e = newError(InternalError, fmt.Errorf("check %s: %w", perm, err))
				} else if !allowed {
					e = &Error{Kind: PermissionDenied, Err: fmt.Errorf("missing %s", perm)}
				}
			}
			if e != nil {
				logger.Warn("request denied",
					zap.String("kind", e.Kind.String()),
					zap.String("user_id", user.UserID),
					zap.String("path", r.URL.Path),
					zap.String("permission", perm),
				)
				rs.Write(w, r, e)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

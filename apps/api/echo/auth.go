package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/anasaran05/learnsync/core"
	"github.com/anasaran05/learnsync/services/identity"
)

const (
	authScheme        = "Bearer"
	contextSubjectKey = "subject"
)

// authMiddleware resolves the bearer token into the authenticated subject and stores it on the context.
func authMiddleware(verifier identity.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			token, ok := bearerToken(ctx.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return errMissingToken
			}

			subject, err := verifier.Verify(ctx.Request().Context(), token)
			if err != nil {
				if core.IsAuthError(err) {
					return errInvalidToken
				}
				return errors.Wrap(err, "verifying token")
			}
			ctx.Set(contextSubjectKey, subject)
			return next(ctx)
		}
	}
}

func bearerToken(header string) (string, bool) {
	l := len(authScheme)
	if len(header) <= l+1 || !strings.EqualFold(header[:l], authScheme) || header[l] != ' ' {
		return "", false
	}
	token := strings.TrimSpace(header[l+1:])
	return token, token != ""
}

func getContextSubject(ctx echo.Context) (string, error) {
	if subject, ok := ctx.Get(contextSubjectKey).(string); ok && subject != "" {
		return subject, nil
	}
	return "", errMissingToken
}

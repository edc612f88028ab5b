package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/anasaran05/learnsync/core"
)

// ownerMiddleware rejects requests whose :ownerId path param is not the authenticated subject.
// It runs before any handler so a mismatched request never reaches the repository.
func ownerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		subject, err := getContextSubject(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context subject")
		}
		if owner := ctx.Param("ownerId"); owner != subject {
			return &core.AuthorizationError{Subject: subject, Owner: owner}
		}
		return next(ctx)
	}
}

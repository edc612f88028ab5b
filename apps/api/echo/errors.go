package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/anasaran05/learnsync/core"
)

var (
	errMissingToken = echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed bearer token")
	errInvalidToken = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		resp := ErrorResponse{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			if msg, ok := origErr.Message.(string); ok {
				resp.Error = msg
			} else {
				resp.Error = http.StatusText(code)
			}
		case validator.ValidationErrors:
			vErr := core.TranslateValidationErrors(origErr, translator).(*core.ValidationError)
			code = http.StatusBadRequest
			resp.Error = vErr.Error()
			resp.Fields = fieldsMap(vErr.Fields)
		case *core.ValidationError:
			code = http.StatusBadRequest
			resp.Error = origErr.Error()
			if resp.Error == "" {
				resp.Error = http.StatusText(code)
			}
			resp.Fields = fieldsMap(origErr.Fields)
		case *core.AuthError:
			code = http.StatusUnauthorized
			resp.Error = origErr.Msg
		case *core.AuthorizationError:
			code = http.StatusForbidden
			resp.Error = origErr.Error()
		default: // any other error is a server error
			code = http.StatusInternalServerError
			resp.Error = core.ErrOperationFailed.Error()

			var extra []interface{}
			if subject, sErr := getContextSubject(ctx); sErr == nil {
				extra = append(extra, core.Person{ID: subject})
			}
			logger.Error(http.StatusText(code), append([]interface{}{errors.Wrap(err, "handling request")}, extra...)...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			resp.Error = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func fieldsMap(flds []core.FieldError) map[string]string {
	if len(flds) == 0 {
		return nil
	}
	m := make(map[string]string, len(flds))
	for _, fErr := range flds {
		m[fErr.Field] = fErr.Error
	}
	return m
}

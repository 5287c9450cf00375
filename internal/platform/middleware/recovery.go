package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/auth"
)

const maxStack = 4096

// Recovery turns a handler panic into a 500 and logs it with the request id,
// the route and the calling account. http.ErrAbortHandler is re-panicked so
// net/http can abort the connection as intended.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				var stack [maxStack]byte
				n := runtime.Stack(stack[:], false)

				evt := logger.Error().
					Str("method", c.Request().Method).
					Str("route", c.Path()).
					Str("stack", string(stack[:n]))
				if rid, ok := c.Get(RequestIDKey).(string); ok {
					evt = evt.Str("request_id", rid)
				}
				if caller, ok := auth.CallerFromContext(c.Request().Context()); ok {
					evt = evt.Str("account_id", caller.ID.String())
				}
				if perr, ok := r.(error); ok {
					evt = evt.Err(perr)
				} else {
					evt = evt.Str("panic", fmt.Sprint(r))
				}
				evt.Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}

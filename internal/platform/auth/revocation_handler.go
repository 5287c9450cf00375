package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RegisterRevocationRoutes mounts POST /auth/logout, which revokes the bearer
// token of the current request.
func RegisterRevocationRoutes(g *echo.Group, store RevocationStore) {
	g.POST("/auth/logout", handleLogout(store))
}

func handleLogout(store RevocationStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, ok := CallerFromContext(ctx); !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		tok, ok := TokenFromContext(ctx)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "request was not authenticated with a revocable token")
		}
		if err := store.Revoke(ctx, tok.ID, tok.ExpiresAt); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

package api

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// GzipRequestMiddleware decompresses gzip encoded request bodies with echo's
// Decompress middleware. A body that is not valid gzip is answered with 400
// instead of the internal error echo would report.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	decompress := middleware.Decompress()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := decompress(next)
		return func(c echo.Context) error {
			err := h(c)
			if isGzipError(err) && !c.Response().Committed {
				return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid gzip body"})
			}
			return err
		}
	}
}

func isGzipError(err error) bool {
	return errors.Is(err, gzip.ErrHeader) ||
		errors.Is(err, gzip.ErrChecksum) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

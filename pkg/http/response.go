package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// DataResponse writes data inside the APIResponse envelope.
func DataResponse(c echo.Context, status int, data any) error {
	return c.JSON(status, APIResponse{Status: status, Message: http.StatusText(status), Data: data})
}

func SuccessResponse(c echo.Context, data any) error { return DataResponse(c, http.StatusOK, data) }

func BadRequestResponse(c echo.Context, data any) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

func NotFoundResponse(c echo.Context, data any) error {
	return DataResponse(c, http.StatusNotFound, data)
}

func ListResponse(c echo.Context, rows any, total int64) error {
	return SuccessResponse(c, &ListDataResponse{Rows: rows, Total: total})
}

// AppErrorResponse renders err with its own status; errors that are not an
// *AppError are reported as 500 with their message.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalError(err.Error()).WithError(err)
	}
	return DataResponse(c, appErr.Status, []*AppError{appErr})
}

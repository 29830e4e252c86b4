package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func respondSuccess(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{jsonKeySuccess: true})
}

func respondSaved(c echo.Context, version int64) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		jsonKeySuccess: true,
		jsonKeyVersion: version,
	})
}

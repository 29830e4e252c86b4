package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	contentTypeJSON          = "application/json"
	maxStrictBodyBytes int64 = 1 << 20
	maxDocumentBytes   int64 = 8 << 20
)

// bindStrictJSON decodes a small request body and rejects unknown fields.
func bindStrictJSON(c echo.Context, dst interface{}) error {
	return bindJSON(c, dst, maxStrictBodyBytes, true)
}

// bindDocumentJSON decodes a project document. Unknown fields are kept by the
// document type itself, so they are not rejected here.
func bindDocumentJSON(c echo.Context, dst interface{}) error {
	return bindJSON(c, dst, maxDocumentBytes, false)
}

func bindJSON(c echo.Context, dst interface{}, limit int64, strict bool) error {
	if !strings.HasPrefix(strings.ToLower(c.Request().Header.Get(echo.HeaderContentType)), contentTypeJSON) {
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, msgContentTypeJSONRequired)
	}

	body := http.MaxBytesReader(c.Response(), c.Request().Body, limit)
	decoder := json.NewDecoder(body)
	if strict {
		decoder.DisallowUnknownFields()
	}

	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, msgPayloadTooLarge)
		}
		return echo.NewHTTPError(http.StatusBadRequest, msgInvalidRequestBody)
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return echo.NewHTTPError(http.StatusBadRequest, msgInvalidRequestBody)
	}

	return nil
}

// readBody reads a raw upload body of at most limit bytes.
func readBody(c echo.Context, limit int64) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, msgPayloadTooLarge)
		}
		return nil, echo.NewHTTPError(http.StatusBadRequest, msgReadBodyFail)
	}
	return data, nil
}

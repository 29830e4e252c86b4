package handler

import (
	"net/http"

	"studio-store/internal/auth"
	"studio-store/internal/imagekey"
	"studio-store/internal/uploader"

	"github.com/labstack/echo/v4"
)

type ImageHandler struct {
	images  ImageStore
	maxSize int64
}

func NewImageHandler(images ImageStore, maxSize int64) *ImageHandler {
	if maxSize <= 0 {
		maxSize = uploader.DefaultMaxSize
	}
	return &ImageHandler{images: images, maxSize: maxSize}
}

// UploadImage stores the raw request body. The :key segment names the slot the
// image is uploaded for (ref-0, gen-3); any other value uploads it untagged.
func (h *ImageHandler) UploadImage(c echo.Context) error {
	data, err := readBody(c, h.maxSize)
	if err != nil {
		return err
	}

	res, err := h.images.Upload(c.Request().Context(), uploader.Request{
		ProjectID:   c.QueryParam(queryProject),
		Slot:        imagekey.ParseSlot(c.Param(paramKey)),
		ContentType: c.Request().Header.Get(echo.HeaderContentType),
		Data:        data,
		Principal:   auth.GetPrincipal(c),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{jsonKeyURL: res.URL})
}

func (h *ImageHandler) GetImage(c echo.Context) error {
	obj, err := h.images.Fetch(c.Request().Context(), c.QueryParam(queryProject), c.Param(paramKey))
	if err != nil {
		return err
	}

	c.Response().Header().Set(headerCacheControl, cacheControlImmutable)
	return c.Blob(http.StatusOK, obj.ContentType, obj.Data)
}

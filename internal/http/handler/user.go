package handler

import (
	"net/http"
	"time"

	"studio-store/internal/domain/user"

	"github.com/labstack/echo/v4"
)

type UserHandler struct {
	users UserDirectory
}

func NewUserHandler(users UserDirectory) *UserHandler {
	return &UserHandler{users: users}
}

type UpdateUserRequest struct {
	ExpiresAt    time.Time          `json:"expiresAt"`
	CustomModels *user.CustomModels `json:"customModels,omitempty"`
}

func (h *UserHandler) ListUsers(c echo.Context) error {
	users, err := h.users.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, users)
}

func (h *UserHandler) DeleteUser(c echo.Context) error {
	if err := h.users.DeleteUser(c.Request().Context(), c.Param(paramID)); err != nil {
		return err
	}

	return respondSuccess(c)
}

func (h *UserHandler) UpdateUser(c echo.Context) error {
	var req UpdateUserRequest
	if err := bindStrictJSON(c, &req); err != nil {
		return err
	}

	profile, err := h.users.UpdateExpiry(c.Request().Context(), c.Param(paramID), user.UpdateExpiryInput{
		ExpiresAt:    req.ExpiresAt,
		CustomModels: req.CustomModels,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, profile)
}

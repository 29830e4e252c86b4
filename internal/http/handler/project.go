package handler

import (
	"net/http"

	"studio-store/internal/auth"
	"studio-store/internal/domain/project"

	"github.com/labstack/echo/v4"
)

type ProjectHandler struct {
	projects ProjectStore
}

func NewProjectHandler(projects ProjectStore) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

func (h *ProjectHandler) SaveProject(c echo.Context) error {
	var doc project.Document
	if err := bindDocumentJSON(c, &doc); err != nil {
		return err
	}

	saved, err := h.projects.Save(c.Request().Context(), &doc, auth.GetPrincipal(c))
	if err != nil {
		return err
	}

	return respondSaved(c, saved.Version)
}

func (h *ProjectHandler) GetProject(c echo.Context) error {
	doc, err := h.projects.Load(c.Request().Context(), c.Param(paramID), auth.GetPrincipal(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, doc)
}

func (h *ProjectHandler) DeleteProject(c echo.Context) error {
	if err := h.projects.Delete(c.Request().Context(), c.Param(paramID), auth.GetPrincipal(c)); err != nil {
		return err
	}

	return respondSuccess(c)
}

func (h *ProjectHandler) ListProjects(c echo.Context) error {
	metas, err := h.projects.List(c.Request().Context(), auth.GetPrincipal(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, metas)
}

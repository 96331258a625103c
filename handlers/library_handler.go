package handlers

import (
	"clinical-mdr-api/helper"
	"clinical-mdr-api/models"
	"clinical-mdr-api/services"

	"github.com/gin-gonic/gin"
)

type LibraryHandler struct {
	libraryService services.LibraryService
	Helper         *helper.HTTPHelper
}

func NewLibraryHandler(libraryService services.LibraryService, h *helper.HTTPHelper) *LibraryHandler {
	return &LibraryHandler{libraryService: libraryService, Helper: h}
}

func (h *LibraryHandler) CreateLibrary(c *gin.Context) {
	var req models.CreateLibraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	library, err := h.libraryService.CreateLibrary(c.Request.Context(), req)
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendCreated(c, "Library created", library)
}

func (h *LibraryHandler) GetLibraries(c *gin.Context) {
	libraries, err := h.libraryService.GetLibraries(c.Request.Context())
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "", libraries)
}

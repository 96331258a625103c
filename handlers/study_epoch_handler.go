package handlers

import (
	"strconv"

	"clinical-mdr-api/helper"
	"clinical-mdr-api/middleware"
	"clinical-mdr-api/models"
	"clinical-mdr-api/services"

	"github.com/gin-gonic/gin"
)

type StudyEpochHandler struct {
	epochService services.StudyEpochService
	Helper       *helper.HTTPHelper
}

func NewStudyEpochHandler(epochService services.StudyEpochService, h *helper.HTTPHelper) *StudyEpochHandler {
	return &StudyEpochHandler{epochService: epochService, Helper: h}
}

func (h *StudyEpochHandler) GetEpochs(c *gin.Context) {
	epochs, err := h.epochService.GetAll(c.Request.Context(), c.Param("study_uid"))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "", epochs)
}

func (h *StudyEpochHandler) GetEpoch(c *gin.Context) {
	epoch, err := h.epochService.Get(c.Request.Context(), c.Param("study_uid"), c.Param("epoch_uid"))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "", epoch)
}

func (h *StudyEpochHandler) CreateEpoch(c *gin.Context) {
	var req models.StudyEpochInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	epoch, err := h.epochService.Create(c.Request.Context(), c.Param("study_uid"), req, middleware.Author(c))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendCreated(c, "Study epoch created", epoch)
}

func (h *StudyEpochHandler) EditEpoch(c *gin.Context) {
	var req models.StudyEpochEditInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	epoch, err := h.epochService.Edit(c.Request.Context(), c.Param("study_uid"), c.Param("epoch_uid"), req, middleware.Author(c))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Study epoch updated", epoch)
}

func (h *StudyEpochHandler) DeleteEpoch(c *gin.Context) {
	if err := h.epochService.Delete(c.Request.Context(), c.Param("study_uid"), c.Param("epoch_uid"), middleware.Author(c)); err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendNoContent(c)
}

func (h *StudyEpochHandler) ReorderEpoch(c *gin.Context) {
	newOrder, err := strconv.Atoi(c.Param("new_order"))
	if err != nil {
		h.Helper.SendBadRequest(c, "Invalid order", h.Helper.EmptyJsonMap())
		return
	}

	epoch, err := h.epochService.Reorder(c.Request.Context(), c.Param("study_uid"), c.Param("epoch_uid"), newOrder, middleware.Author(c))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Study epoch reordered", epoch)
}

package handlers

import (
	"clinical-mdr-api/helper"
	"clinical-mdr-api/models"
	"clinical-mdr-api/services"

	"github.com/gin-gonic/gin"
)

type StudyHandler struct {
	studyService services.StudyService
	Helper       *helper.HTTPHelper
}

func NewStudyHandler(studyService services.StudyService, h *helper.HTTPHelper) *StudyHandler {
	return &StudyHandler{studyService: studyService, Helper: h}
}

func (h *StudyHandler) CreateStudy(c *gin.Context) {
	var req models.CreateStudyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	study, err := h.studyService.CreateStudy(c.Request.Context(), req)
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendCreated(c, "Study created", study)
}

func (h *StudyHandler) GetStudy(c *gin.Context) {
	study, err := h.studyService.GetStudy(c.Request.Context(), c.Param("study_uid"))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "", study)
}

func (h *StudyHandler) LockStudy(c *gin.Context) {
	study, err := h.studyService.LockStudy(c.Request.Context(), c.Param("study_uid"))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendCreated(c, "Study locked", study)
}

func (h *StudyHandler) UnlockStudy(c *gin.Context) {
	study, err := h.studyService.UnlockStudy(c.Request.Context(), c.Param("study_uid"))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Study unlocked", study)
}

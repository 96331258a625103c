package handlers

import (
	"clinical-mdr-api/helper"
	"clinical-mdr-api/middleware"
	"clinical-mdr-api/models"
	"clinical-mdr-api/services"

	"github.com/gin-gonic/gin"
)

type StudyVisitHandler struct {
	visitService services.StudyVisitService
	Helper       *helper.HTTPHelper
}

func NewStudyVisitHandler(visitService services.StudyVisitService, h *helper.HTTPHelper) *StudyVisitHandler {
	return &StudyVisitHandler{visitService: visitService, Helper: h}
}

func (h *StudyVisitHandler) GetVisits(c *gin.Context) {
	visits, err := h.visitService.GetAll(c.Request.Context(), c.Param("study_uid"))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "", visits)
}

func (h *StudyVisitHandler) GetVisit(c *gin.Context) {
	visit, err := h.visitService.Get(c.Request.Context(), c.Param("study_uid"), c.Param("visit_uid"))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "", visit)
}

func (h *StudyVisitHandler) CreateVisit(c *gin.Context) {
	var req models.StudyVisitInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	visit, err := h.visitService.Create(c.Request.Context(), c.Param("study_uid"), req, middleware.Author(c))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendCreated(c, "Study visit created", visit)
}

func (h *StudyVisitHandler) PreviewVisit(c *gin.Context) {
	var req models.StudyVisitInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	visit, err := h.visitService.Preview(c.Request.Context(), c.Param("study_uid"), req)
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "", visit)
}

func (h *StudyVisitHandler) EditVisit(c *gin.Context) {
	var req models.StudyVisitInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	visit, err := h.visitService.Edit(c.Request.Context(), c.Param("study_uid"), c.Param("visit_uid"), req, middleware.Author(c))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Study visit updated", visit)
}

func (h *StudyVisitHandler) DeleteVisit(c *gin.Context) {
	if err := h.visitService.Delete(c.Request.Context(), c.Param("study_uid"), c.Param("visit_uid"), middleware.Author(c)); err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendNoContent(c)
}

func (h *StudyVisitHandler) GetVisitAuditTrail(c *gin.Context) {
	trail, err := h.visitService.AuditTrail(c.Request.Context(), c.Param("study_uid"), c.Param("visit_uid"))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "", trail)
}

func (h *StudyVisitHandler) GetStudyAuditTrail(c *gin.Context) {
	trail, err := h.visitService.StudyAuditTrail(c.Request.Context(), c.Param("study_uid"))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "", trail)
}

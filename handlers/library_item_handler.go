package handlers

import (
	"clinical-mdr-api/domain"
	"clinical-mdr-api/helper"
	"clinical-mdr-api/middleware"
	"clinical-mdr-api/models"
	"clinical-mdr-api/services"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// LibraryItemHandler serves the lifecycle routes of one versioned entity.
type LibraryItemHandler[V domain.Value[V]] struct {
	service services.LibraryItemService[V]
	Helper  *helper.HTTPHelper
}

func NewLibraryItemHandler[V domain.Value[V]](service services.LibraryItemService[V], h *helper.HTTPHelper) *LibraryItemHandler[V] {
	return &LibraryItemHandler[V]{service: service, Helper: h}
}

// Register mounts the entity routes on group.
func (h *LibraryItemHandler[V]) Register(group *gin.RouterGroup) {
	group.GET("", h.List)
	group.POST("", h.Create)
	group.GET("/:uid", h.Get)
	group.PATCH("/:uid", h.Edit)
	group.DELETE("/:uid", h.Delete)
	group.POST("/:uid/approvals", h.Approve)
	group.POST("/:uid/versions", h.CreateNewVersion)
	group.GET("/:uid/versions", h.GetVersions)
	group.DELETE("/:uid/activations", h.Inactivate)
	group.POST("/:uid/activations", h.Reactivate)
}

func (h *LibraryItemHandler[V]) Create(c *gin.Context) {
	var ref models.LibraryRef
	if err := c.ShouldBindBodyWith(&ref, binding.JSON); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}
	var value V
	if err := c.ShouldBindBodyWith(&value, binding.JSON); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	item, err := h.service.Create(c.Request.Context(), ref.LibraryName, value, middleware.Author(c))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendCreated(c, "Item created", item)
}

func (h *LibraryItemHandler[V]) List(c *gin.Context) {
	var params models.ItemListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	page, err := h.service.List(c.Request.Context(), params)
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "", page)
}

func (h *LibraryItemHandler[V]) Get(c *gin.Context) {
	var query models.ItemQueryParams
	if err := c.ShouldBindQuery(&query); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	item, err := h.service.Get(c.Request.Context(), c.Param("uid"), query)
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "", item)
}

func (h *LibraryItemHandler[V]) Edit(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.Helper.SendBadRequest(c, err.Error(), h.Helper.EmptyJsonMap())
		return
	}

	item, err := h.service.Edit(c.Request.Context(), c.Param("uid"), body, middleware.Author(c))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Item updated", item)
}

func (h *LibraryItemHandler[V]) Delete(c *gin.Context) {
	if err := h.service.SoftDelete(c.Request.Context(), c.Param("uid"), middleware.Author(c)); err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendNoContent(c)
}

func (h *LibraryItemHandler[V]) Approve(c *gin.Context) {
	item, err := h.service.Approve(c.Request.Context(), c.Param("uid"), middleware.Author(c))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendCreated(c, "Item approved", item)
}

func (h *LibraryItemHandler[V]) CreateNewVersion(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.Helper.SendBadRequest(c, err.Error(), h.Helper.EmptyJsonMap())
		return
	}

	item, err := h.service.CreateNewVersion(c.Request.Context(), c.Param("uid"), body, middleware.Author(c))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendCreated(c, "New version created", item)
}

func (h *LibraryItemHandler[V]) GetVersions(c *gin.Context) {
	versions, err := h.service.GetVersions(c.Request.Context(), c.Param("uid"))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "", versions)
}

func (h *LibraryItemHandler[V]) Inactivate(c *gin.Context) {
	item, err := h.service.Inactivate(c.Request.Context(), c.Param("uid"), middleware.Author(c))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Item inactivated", item)
}

func (h *LibraryItemHandler[V]) Reactivate(c *gin.Context) {
	item, err := h.service.Reactivate(c.Request.Context(), c.Param("uid"), middleware.Author(c))
	if err != nil {
		h.Helper.SendErrorResponse(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Item reactivated", item)
}

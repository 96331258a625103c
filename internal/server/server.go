// Package server wires repositories, services and handlers into a gin engine.
package server

import (
	"net/http"

	"clinical-mdr-api/cache"
	"clinical-mdr-api/domain"
	"clinical-mdr-api/handlers"
	"clinical-mdr-api/helper"
	"clinical-mdr-api/logger"
	"clinical-mdr-api/metrics"
	"clinical-mdr-api/middleware"
	"clinical-mdr-api/models"
	"clinical-mdr-api/repositories"
	"clinical-mdr-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Deps struct {
	DB      *gorm.DB
	Log     *logger.Logger
	Metrics *metrics.Metrics
	Cache   *cache.ItemCache
}

type itemRoutes struct {
	locks     *repositories.LockTable
	libraries repositories.LibraryRepository
	deps      Deps
	helper    *helper.HTTPHelper
}

func mountItems[V domain.Value[V]](api *gin.RouterGroup, path string, capability repositories.ItemCapability[V], r itemRoutes) repositories.LibraryItemRepository[V] {
	repo := repositories.NewLibraryItemRepository[V](r.deps.DB, capability, r.deps.Cache, r.locks, r.deps.Metrics, r.deps.Log)
	service := services.NewLibraryItemService(repo, r.libraries, r.deps.Log, r.deps.Metrics)
	handlers.NewLibraryItemHandler(service, r.helper).Register(api.Group(path))
	return repo
}

// New builds the HTTP engine with every route of the API.
func New(deps Deps) *gin.Engine {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	db := deps.DB
	h := helper.NewHTTPHelper()
	locks := repositories.NewLockTable()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	libraryRepo := repositories.NewLibraryRepository(db)
	studyRepo := repositories.NewStudyRepository(db, deps.Metrics)
	epochRepo := repositories.NewStudyEpochRepository(db)
	visitRepo := repositories.NewStudyVisitRepository(db)

	// Initialize services and handlers
	authHandler := handlers.NewAuthHandler(services.NewAuthService(userRepo), h)
	libraryHandler := handlers.NewLibraryHandler(services.NewLibraryService(libraryRepo), h)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Log.HTTPLogger(), deps.Metrics))
	router.Use(middleware.CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.GET("/profile", authHandler.GetProfile)

			protected.GET("/libraries", libraryHandler.GetLibraries)
			protected.POST("/libraries", middleware.RequireRole(string(models.RoleAdmin)), libraryHandler.CreateLibrary)

			items := itemRoutes{locks: locks, libraries: libraryRepo, deps: deps, helper: h}
			mountItems[models.ActivityGroupValue](protected, "/activity-groups", repositories.ActivityGroupCapability{}, items)
			mountItems[models.ActivitySubGroupValue](protected, "/activity-sub-groups", repositories.ActivitySubGroupCapability{}, items)
			mountItems[models.ActivityValue](protected, "/activities", repositories.ActivityCapability{}, items)
			mountItems[models.CompoundValue](protected, "/compounds", repositories.CompoundCapability{}, items)
			mountItems[models.CTCodelistValue](protected, "/ct/codelists", repositories.CTCodelistCapability{}, items)
			mountItems[models.CTTermValue](protected, "/ct/terms", repositories.CTTermCapability{}, items)
			unitRepo := mountItems[models.UnitDefinitionValue](protected, "/unit-definitions", repositories.UnitDefinitionCapability{}, items)

			studyHandler := handlers.NewStudyHandler(services.NewStudyService(db, studyRepo, locks, deps.Log), h)
			epochHandler := handlers.NewStudyEpochHandler(services.NewStudyEpochService(db, studyRepo, epochRepo, visitRepo, unitRepo, locks, deps.Metrics, deps.Log), h)
			visitHandler := handlers.NewStudyVisitHandler(services.NewStudyVisitService(db, studyRepo, epochRepo, visitRepo, unitRepo, locks, deps.Metrics, deps.Log), h)

			protected.POST("/studies", studyHandler.CreateStudy)
			study := protected.Group("/studies/:study_uid")
			{
				study.GET("", studyHandler.GetStudy)
				study.POST("/locks", studyHandler.LockStudy)
				study.DELETE("/locks", studyHandler.UnlockStudy)

				study.GET("/study-epochs", epochHandler.GetEpochs)
				study.POST("/study-epochs", epochHandler.CreateEpoch)
				study.GET("/study-epochs/:epoch_uid", epochHandler.GetEpoch)
				study.PATCH("/study-epochs/:epoch_uid", epochHandler.EditEpoch)
				study.DELETE("/study-epochs/:epoch_uid", epochHandler.DeleteEpoch)
				study.PATCH("/study-epochs/:epoch_uid/order/:new_order", epochHandler.ReorderEpoch)

				study.GET("/study-visits", visitHandler.GetVisits)
				study.POST("/study-visits", visitHandler.CreateVisit)
				study.POST("/study-visits/preview", visitHandler.PreviewVisit)
				study.GET("/study-visits/audit-trail", visitHandler.GetStudyAuditTrail)
				study.GET("/study-visits/:visit_uid", visitHandler.GetVisit)
				study.PATCH("/study-visits/:visit_uid", visitHandler.EditVisit)
				study.DELETE("/study-visits/:visit_uid", visitHandler.DeleteVisit)
				study.GET("/study-visits/:visit_uid/audit-trail", visitHandler.GetVisitAuditTrail)
			}
		}
	}

	return router
}

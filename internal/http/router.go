package http

import (
	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the HTTP router with all endpoints.
// Uses RouterConfig to receive all dependencies, improving testability
// and reducing parameter count.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Multipart bodies beyond this are spooled to disk by net/http.
	router.MaxMultipartMemory = 32 << 20

	health := NewHealthController(cfg.Database, cfg.Version).WithVaultDir(cfg.VaultDir)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	api := router.Group("/api")

	// Import endpoints
	if cfg.Importer != nil && cfg.Packages != nil {
		var enqueuer ImportEnqueuer
		if cfg.TaskClient != nil {
			enqueuer = cfg.TaskClient
		}
		apkgImporter := NewApkgImportController(cfg.Importer, cfg.Packages, enqueuer, cfg.MaxPackageSize)
		api.POST("/import/apkg", apkgImporter.Import)
	}

	// Import history endpoints
	if cfg.History != nil {
		importsController := NewImportsController(cfg.History)
		api.GET("/imports", importsController.List)
		api.GET("/imports/:id", importsController.Get)
	}

	// Task queue endpoints
	if cfg.TaskClient != nil {
		tasksController := NewTasksController(cfg.TaskClient)
		api.GET("/tasks/types", tasksController.ListTaskTypes)
		api.GET("/tasks/:id", tasksController.GetTaskStatus)
	}

	return router
}

package handler

import (
	"github.com/gin-gonic/gin"
)

// WorkflowHandlers bundles the handlers mounted under the API prefix.
type WorkflowHandlers struct {
	Connections   *ConnectionHandler
	Registrations *RegistrationHandler
	Applications  *ApplicationHandler
}

// RegisterWorkflowRoutes mounts the workflow endpoints on group. Authentication middleware must
// already be attached to group.
func RegisterWorkflowRoutes(group *gin.RouterGroup, h WorkflowHandlers) {
	connections := group.Group("/connections")
	connections.POST("", h.Connections.Create)
	connections.GET("", h.Connections.List)
	connections.GET("/:id", h.Connections.Get)
	connections.PATCH("/:id/status", h.Connections.UpdateStatus)
	connections.DELETE("/:id", h.Connections.Cancel)

	events := group.Group("/events/:id")
	events.POST("/registrations", h.Registrations.Register)
	events.GET("/registrations", h.Registrations.ListForEvent)
	events.GET("/registrations/export", h.Registrations.ExportRoster)
	events.GET("/capacity", h.Registrations.Capacity)

	registrations := group.Group("/registrations")
	registrations.GET("", h.Registrations.ListMine)
	registrations.GET("/:id", h.Registrations.Get)
	registrations.PATCH("/:id/status", h.Registrations.UpdateStatus)

	jobs := group.Group("/jobs/:id")
	jobs.POST("/applications", h.Applications.Apply)
	jobs.GET("/applications", h.Applications.ListForJob)

	applications := group.Group("/applications")
	applications.GET("", h.Applications.ListMine)
	applications.GET("/:id", h.Applications.Get)
	applications.PATCH("/:id/status", h.Applications.UpdateStatus)
}

// RegisterOpsRoutes mounts liveness, readiness and metrics endpoints at the root.
func RegisterOpsRoutes(router gin.IRoutes, ops *OpsHandler) {
	router.GET("/health", ops.Health)
	router.GET("/ready", ops.Ready)
	router.GET("/metrics", ops.Prometheus)
}

// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"farmapos/internal/infrastructure/http/v1/middleware"
)

// Operator roles. Reads are open to any authenticated operator; the
// role gates below protect the mutations.
const (
	RoleCashier    = "cashier"
	RolePharmacist = "pharmacist"
	RoleSupervisor = "supervisor"
)

// CatalogRouteHandler defines the interface for catalog handlers.
type CatalogRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	SetDeletionMark(c *gin.Context)
}

// RegisterCatalogRoutes registers standard CRUD routes for a catalog.
// Writes require one of the given roles; reads only authentication.
func RegisterCatalogRoutes(group *gin.RouterGroup, handler CatalogRouteHandler, writeRoles ...string) {
	group.GET("", handler.List)
	group.GET("/:id", handler.Get)
	group.POST("", middleware.RequireRole(writeRoles...), handler.Create)
	group.PUT("/:id", middleware.RequireRole(writeRoles...), handler.Update)
	group.POST("/:id/deletion-mark", middleware.RequireRole(writeRoles...), handler.SetDeletionMark)
}

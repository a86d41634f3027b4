// Package admin registers the staff-only maintenance routes.
package admin

import (
	handlers "github.com/cavelog/cavelog/internal/http/api/admin/handlers"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers admin routes on a group that already rejects
// non-staff users.
func RegisterAdminRoutes(r *gin.RouterGroup, db *gorm.DB) {
	if r == nil || db == nil {
		return
	}

	userHandler := handlers.NewUserHandler(db)
	r.GET("/users", userHandler.List)
	r.POST("/prune-inactive-users", userHandler.Prune)
	r.GET("/users/:id", userHandler.Get)
	r.DELETE("/users/:id", userHandler.Delete)
	r.POST("/users/:id/disable", userHandler.Disable)
	r.POST("/users/:id/enable", userHandler.Enable)

	notificationHandler := handlers.NewNotificationHandler(db)
	r.POST("/notifications", notificationHandler.NotifyAll)
}

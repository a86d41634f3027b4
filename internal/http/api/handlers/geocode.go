package handlers

import (
	"net/http"

	"github.com/cavelog/cavelog/internal/geocode"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// GeocodeHandler resolves cave locations to coordinates.
type GeocodeHandler struct {
	client *geocode.Client
}

// NewGeocodeHandler constructs a GeocodeHandler.
func NewGeocodeHandler(client *geocode.Client) *GeocodeHandler {
	return &GeocodeHandler{client: client}
}

// Lookup geocodes the query parameter.
func (h *GeocodeHandler) Lookup(c *gin.Context) {
	point, errGeocode := h.client.Geocode(c.Request.Context(), c.Query("query"))
	if errGeocode != nil {
		respondError(c, errGeocode)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lat": point.Lat, "lng": point.Lng})
}

// HealthHandler reports service liveness.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthz pings the database.
func (h *HealthHandler) Healthz(c *gin.Context) {
	if errPing := h.db.WithContext(c.Request.Context()).Exec("SELECT 1").Error; errPing != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

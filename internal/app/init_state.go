package app

import (
	"fmt"

	"github.com/cavelog/cavelog/internal/models"
	"gorm.io/gorm"
)

// HasSuperuser reports whether at least one staff account exists.
func HasSuperuser(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.User{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.Model(&models.User{}).Where("is_superuser = ?", true).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

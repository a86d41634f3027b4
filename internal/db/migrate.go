package db

import (
	"fmt"

	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/textfold"
	"gorm.io/gorm"
)

// allModels lists every table in creation order.
func allModels() []any {
	return []any{
		&models.User{},
		&models.Friendship{},
		&models.FriendRequest{},
		&models.Caver{},
		&models.Trip{},
		&models.TripCaver{},
		&models.TripLike{},
		&models.TripFollower{},
		&models.TripReport{},
		&models.ReportLike{},
		&models.TripPhoto{},
		&models.Comment{},
		&models.News{},
		&models.NewsComment{},
		&models.Notification{},
		&models.CaveSystem{},
		&models.CaveEntrance{},
		&models.EmailOutbox{},
	}
}

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// backfillSearchText fills the folded search columns of rows written before
// those columns existed.
func backfillSearchText(conn *gorm.DB) error {
	folder := textfold.New()
	var trips []models.Trip
	errTrips := conn.Select("id", "cave_name", "cave_entrance", "cave_exit", "cave_region", "cave_country", "clubs", "expedition", "notes").
		Where("search_text IS NULL OR search_text = ''").
		FindInBatches(&trips, 200, func(_ *gorm.DB, _ int) error {
			for i := range trips {
				if errUpdate := conn.Model(&models.Trip{}).Where("id = ?", trips[i].ID).
					UpdateColumn("search_text", trips[i].FoldedText(folder)).Error; errUpdate != nil {
					return errUpdate
				}
			}
			return nil
		}).Error
	if errTrips != nil {
		return fmt.Errorf("db: backfill trip search text: %w", errTrips)
	}
	var cavers []models.Caver
	errCavers := conn.Select("id", "name").
		Where("search_name IS NULL OR search_name = ''").
		FindInBatches(&cavers, 200, func(_ *gorm.DB, _ int) error {
			for i := range cavers {
				if errUpdate := conn.Model(&models.Caver{}).Where("id = ?", cavers[i].ID).
					UpdateColumn("search_name", folder.String(cavers[i].Name)).Error; errUpdate != nil {
					return errUpdate
				}
			}
			return nil
		}).Error
	if errCavers != nil {
		return fmt.Errorf("db: backfill caver search names: %w", errCavers)
	}
	return nil
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(allModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errVisible := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_trip_photos_visible
		ON trip_photos (trip_id)
		WHERE is_valid AND deleted_at IS NULL
	`).Error; errVisible != nil {
		return fmt.Errorf("db: create visible photos index: %w", errVisible)
	}
	if errUsername := conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower
		ON users (LOWER(email))
	`).Error; errUsername != nil {
		return fmt.Errorf("db: create email index: %w", errUsername)
	}
	if errFeed := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_trips_user_start
		ON trips (user_id, start DESC, id DESC)
	`).Error; errFeed != nil {
		return fmt.Errorf("db: create trip start index: %w", errFeed)
	}
	if errBackfill := backfillSearchText(conn); errBackfill != nil {
		return errBackfill
	}
	return ensureSelfFriendshipGuard(conn)
}

// migrateSQLite applies SQLite-specific schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(allModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errVisible := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_trip_photos_visible
		ON trip_photos (trip_id)
		WHERE is_valid = 1 AND deleted_at IS NULL
	`).Error; errVisible != nil {
		return fmt.Errorf("db: create visible photos index: %w", errVisible)
	}
	if errFeed := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_trips_user_start
		ON trips (user_id, start DESC, id DESC)
	`).Error; errFeed != nil {
		return fmt.Errorf("db: create trip start index: %w", errFeed)
	}
	return backfillSearchText(conn)
}

// ensureSelfFriendshipGuard adds a check constraint forbidding self friendship.
func ensureSelfFriendshipGuard(conn *gorm.DB) error {
	if errGuard := conn.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint WHERE conname = 'chk_friendships_not_self'
			) THEN
				ALTER TABLE friendships ADD CONSTRAINT chk_friendships_not_self CHECK (user_id <> friend_id);
			END IF;
		END $$;
	`).Error; errGuard != nil {
		return fmt.Errorf("db: add friendship guard: %w", errGuard)
	}
	return nil
}

package db

import (
	"fmt"

	"socialgraph/models"

	"gorm.io/gorm"
)

// Migrate creates or updates the schema, including the unique index on the
// ordered (from_user_id, to_user_id) pair that backs request deduplication.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(&models.User{}, &models.UserTokens{}, &models.FriendRequest{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	if !database.Migrator().HasIndex(&models.FriendRequest{}, "idx_friend_requests_pair") {
		return fmt.Errorf("unique index idx_friend_requests_pair is missing after migration")
	}
	return nil
}

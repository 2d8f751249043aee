package db

import (
	"context"
	defError "errors"

	"collaborative-ide/internal/errors"
	"collaborative-ide/internal/project"
	"collaborative-ide/internal/user"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&user.User{},
		&project.Project{},
		&project.ProjectAccess{},
		&project.Folder{},
		&project.File{},
	)
}

// SeedData creates a test user owning a sample project (for development only).
func SeedData(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	userService := user.NewService(user.NewRepository(db))

	testUser := &user.User{
		Name:     "Test User",
		Email:    "test@example.com",
		Password: "password123",
	}
	err := userService.Register(ctx, testUser)
	var apiErr *errors.APIError
	if defError.As(err, &apiErr) && apiErr.Status == 409 {
		log.Info().Str("email", testUser.Email).Msg("Test user already exists")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info().Str("email", testUser.Email).Msg("Created test user")

	readme := "# Sample project\n"
	sample := &project.Project{
		Name:        "sample",
		Description: "Seeded for local development",
		OwnerID:     testUser.ID,
		Access:      []project.ProjectAccess{{UserID: testUser.ID, Role: project.RoleOwner}},
		Files: []project.File{{
			Name:     "README.md",
			Path:     "README.md",
			Language: "markdown",
			Content:  &readme,
			Size:     int64(len(readme)),
		}},
	}
	return db.WithContext(ctx).Create(sample).Error
}

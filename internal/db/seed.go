package db

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schoold/internal/crypto"
	"schoold/internal/models"
)

// Seed ensures a verified admin account exists so teacher approval has an
// operator on day one. No-ops when adminEmail is empty or the user exists.
func Seed(ctx context.Context, database *gorm.DB, adminEmail, adminPassword string) error {
	if adminEmail == "" {
		return nil
	}

	var count int64
	if err := database.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", adminEmail).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := crypto.HashPassword(adminPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	admin := models.User{
		Name:            "Administrator",
		Email:           adminEmail,
		PasswordHash:    hash,
		Role:            models.RoleAdmin,
		EmailVerified:   true,
		EmailVerifiedAt: &now,
	}
	return database.WithContext(ctx).Create(&admin).Error
}

type rosterFile struct {
	Classes []struct {
		Name     string   `yaml:"name"`
		Sections []string `yaml:"sections"`
	} `yaml:"classes"`
	Subjects []struct {
		Name string `yaml:"name"`
		Code string `yaml:"code"`
	} `yaml:"subjects"`
}

// SeedRoster imports classes, sections, and subjects from a YAML roster file.
// Existing names are left untouched.
func SeedRoster(ctx context.Context, database *gorm.DB, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read roster: %w", err)
	}

	var roster rosterFile
	if err := yaml.Unmarshal(raw, &roster); err != nil {
		return fmt.Errorf("parse roster: %w", err)
	}

	return database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range roster.Classes {
			class := models.Class{Name: c.Name}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&class).Error; err != nil {
				return err
			}
			if class.ID == uuid.Nil {
				if err := tx.Where("name = ?", c.Name).First(&class).Error; err != nil {
					return err
				}
			}
			for _, s := range c.Sections {
				section := models.Section{Name: s, ClassID: class.ID}
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&section).Error; err != nil {
					return err
				}
			}
		}
		for _, s := range roster.Subjects {
			subject := models.Subject{Name: s.Name, Code: s.Code}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&subject).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Pet model.
// The "active" pet is the most recently created non-archived row per user.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Arthurgann/hvostosovet/internal/domain"
)

// GetActivePet returns the user's active pet or ErrNotFound.
func GetActivePet(ctx context.Context, db *gorm.DB, userID string) (*domain.Pet, error) {
	var pet domain.Pet
	err := db.WithContext(ctx).
		Where("user_id = ? AND archived_at IS NULL", userID).
		Order("created_at DESC").
		First(&pet).Error
	if err != nil {
		return nil, err
	}
	return &pet, nil
}

// CreatePet inserts a new pet row.
func CreatePet(ctx context.Context, db *gorm.DB, pet *domain.Pet) error {
	return db.WithContext(ctx).Create(pet).Error
}

// UpdatePet rewrites the mirrored columns and the full profile JSON of an
// existing pet. Callers are expected to have merged the profile already;
// this is a plain column write, not a merge.
func UpdatePet(ctx context.Context, db *gorm.DB, pet *domain.Pet, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Pet{}).
		Where("id = ?", pet.ID).
		Updates(map[string]any{
			"type":       pet.Type,
			"name":       pet.Name,
			"sex":        pet.Sex,
			"birth_date": pet.BirthDate,
			"age_text":   pet.AgeText,
			"breed":      pet.Breed,
			"profile":    pet.Profile,
			"updated_at": now,
		}).Error
}

// ListPets returns all non-archived pets for a user, newest first.
func ListPets(ctx context.Context, db *gorm.DB, userID string) ([]domain.Pet, error) {
	var pets []domain.Pet
	err := db.WithContext(ctx).
		Where("user_id = ? AND archived_at IS NULL", userID).
		Order("created_at DESC").
		Find(&pets).Error
	return pets, err
}

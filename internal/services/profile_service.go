// Package services – ProfileService
//
// Pet profiles are free-form maps with a handful of mirrored base fields
// (type, name, sex, birth_date, age_text, breed) that also live as typed
// columns on the pets table. Columns win when the two disagree. Saving
// merges the incoming patch over the full existing profile rather than
// replacing it, so partial updates never drop previously known fields.
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Arthurgann/hvostosovet/internal/domain"
	"github.com/Arthurgann/hvostosovet/internal/repo"
)

// Profile resolution sources, reported in response metadata.
const (
	ProfileSourceRequest = "request"
	ProfileSourceDB      = "db"
	ProfileSourceNone    = "none"
)

// Keys injected by bot-side dialog state that must never be persisted or
// shown to the model.
var petServiceKeys = map[string]struct{}{
	"step":         {},
	"context":      {},
	"current_mode": {},
	"question":     {},
}

// Canonical health note tags. Anything else is folded into "other".
var healthAllowedTags = []string{"allergy", "gi", "skin_coat", "mobility", "other"}

// ProfileService resolves, merges, and persists pet profiles.
type ProfileService struct {
	DB *gorm.DB
}

// NewProfileService constructs a ProfileService.
func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{DB: db}
}

// DeepMerge returns base overlaid with patch. Nested maps merge
// recursively; every other value type in patch replaces the base value
// wholesale. Neither input is mutated.
func DeepMerge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		pv, pok := v.(map[string]any)
		bv, bok := out[k].(map[string]any)
		if pok && bok {
			out[k] = DeepMerge(bv, pv)
		} else {
			out[k] = v
		}
	}
	return out
}

// NormalizeProfile drops dialog-state service keys from a profile map.
// A nil input stays nil.
func NormalizeProfile(pet map[string]any) map[string]any {
	if pet == nil {
		return nil
	}
	out := make(map[string]any, len(pet))
	for k, v := range pet {
		if _, skip := petServiceKeys[k]; skip {
			continue
		}
		out[k] = v
	}
	return out
}

func cleanText(v any) string {
	if v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return strings.TrimSpace(s)
}

// NormalizeHealthBlock canonicalizes pet["health"] into
// {"notes_by_tag": {tag: text}} with only the allowed tags. A bare string
// becomes an "other" note; unknown tags are folded into "other" as
// "key: value" lines so no information is lost. An empty result removes
// the health key entirely. The input map is modified in place and
// returned.
func NormalizeHealthBlock(pet map[string]any) map[string]any {
	if pet == nil {
		return pet
	}
	health, present := pet["health"]
	if !present || health == nil {
		return pet
	}

	if s, ok := health.(string); ok {
		if t := strings.TrimSpace(s); t != "" {
			pet["health"] = map[string]any{"notes_by_tag": map[string]any{"other": t}}
		} else {
			delete(pet, "health")
		}
		return pet
	}

	hm, ok := health.(map[string]any)
	if !ok {
		delete(pet, "health")
		return pet
	}
	notes, _ := hm["notes_by_tag"].(map[string]any)

	outNotes := map[string]any{}
	for _, tag := range healthAllowedTags {
		if v := cleanText(notes[tag]); v != "" {
			outNotes[tag] = v
		}
	}

	var extraKeys []string
	for k := range notes {
		known := false
		for _, tag := range healthAllowedTags {
			if k == tag {
				known = true
				break
			}
		}
		if !known && cleanText(notes[k]) != "" {
			extraKeys = append(extraKeys, k)
		}
	}
	if len(extraKeys) > 0 {
		sort.Strings(extraKeys)
		lines := make([]string, 0, len(extraKeys))
		for _, k := range extraKeys {
			lines = append(lines, k+": "+cleanText(notes[k]))
		}
		extra := strings.Join(lines, "\n")
		if prev, _ := outNotes["other"].(string); prev != "" {
			outNotes["other"] = prev + "\n" + extra
		} else {
			outNotes["other"] = extra
		}
	}

	if len(outNotes) > 0 {
		pet["health"] = map[string]any{"notes_by_tag": outNotes}
	} else {
		delete(pet, "health")
	}
	return pet
}

// IsMinimalProfile reports whether a profile carries no information beyond
// the species. Minimal profiles do not count as a request-supplied profile
// during resolution.
func IsMinimalProfile(pet map[string]any) bool {
	if len(pet) == 0 {
		return true
	}
	for k := range pet {
		if k != "type" {
			return false
		}
	}
	return true
}

// petToMap rebuilds the full profile map from a pet row: the stored JSON
// overlaid with the typed columns, columns winning for base fields.
func petToMap(pet *domain.Pet) map[string]any {
	if pet == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(pet.Profile)+6)
	for k, v := range pet.Profile {
		out[k] = v
	}
	if pet.Type != "" {
		out["type"] = pet.Type
	}
	if pet.Name != "" {
		out["name"] = pet.Name
	}
	if pet.Sex != "" {
		out["sex"] = pet.Sex
	}
	if pet.BirthDate != nil {
		out["birth_date"] = pet.BirthDate.Format("2006-01-02")
	}
	if pet.AgeText != "" {
		out["age_text"] = pet.AgeText
	}
	if pet.Breed != "" {
		out["breed"] = pet.Breed
	}
	return out
}

func parseBirthDate(v any) *time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}

func stringField(pet map[string]any, key string) string {
	s, _ := pet[key].(string)
	return s
}

// ResolveEffective picks the profile the model should see.
//
// Precedence: a non-minimal request profile wins outright; otherwise pro
// users fall back to their stored active pet; free users fall back to the
// request profile even when minimal (a bare species is still better than
// nothing). The returned source is one of the ProfileSource* constants,
// petID is set only for the db source.
func (s *ProfileService) ResolveEffective(ctx context.Context, plan, userID string, requestProfile map[string]any) (map[string]any, string, string, error) {
	if !IsMinimalProfile(requestProfile) {
		return requestProfile, ProfileSourceRequest, "", nil
	}

	if plan == domain.PlanPro && userID != "" {
		pet, err := repo.GetActivePet(ctx, s.DB, userID)
		if err == nil {
			return petToMap(pet), ProfileSourceDB, pet.ID, nil
		}
		if err != repo.ErrNotFound {
			return nil, ProfileSourceNone, "", err
		}
		return nil, ProfileSourceNone, "", nil
	}

	if len(requestProfile) > 0 {
		return requestProfile, ProfileSourceRequest, "", nil
	}
	return nil, ProfileSourceNone, "", nil
}

// ActivePet returns the user's active pet together with its full profile
// map (stored JSON overlaid with columns). ErrPetNotFound when none.
func (s *ProfileService) ActivePet(ctx context.Context, userID string) (*domain.Pet, map[string]any, error) {
	pet, err := repo.GetActivePet(ctx, s.DB, userID)
	if err == repo.ErrNotFound {
		return nil, nil, ErrPetNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return pet, petToMap(pet), nil
}

// UpsertActivePet merges a profile patch into the user's active pet, or
// creates one when none exists. The patch is normalized (service keys
// stripped, health canonicalized) before merging. ErrMissingPetType is
// returned when even the merged profile lacks a species.
func (s *ProfileService) UpsertActivePet(ctx context.Context, db *gorm.DB, userID string, patch map[string]any, now time.Time) (string, error) {
	patch = NormalizeHealthBlock(NormalizeProfile(patch))
	if patch == nil {
		patch = map[string]any{}
	}

	existing, err := repo.GetActivePet(ctx, db, userID)
	if err != nil && err != repo.ErrNotFound {
		return "", err
	}

	full := patch
	if existing != nil {
		full = DeepMerge(petToMap(existing), patch)
	}

	petType := stringField(full, "type")
	if petType == "" {
		return "", ErrMissingPetType
	}
	sex := stringField(full, "sex")
	if sex == "" {
		sex = "unknown"
	}

	pet := &domain.Pet{
		UserID:    userID,
		Type:      petType,
		Name:      stringField(full, "name"),
		Sex:       sex,
		BirthDate: parseBirthDate(full["birth_date"]),
		AgeText:   stringField(full, "age_text"),
		Breed:     stringField(full, "breed"),
		Profile:   datatypes.JSONMap(full),
	}

	if existing != nil {
		pet.ID = existing.ID
		if err := repo.UpdatePet(ctx, db, pet, now); err != nil {
			return "", err
		}
		return pet.ID, nil
	}

	pet.ID = uuid.NewString()
	pet.CreatedAt = now
	pet.UpdatedAt = now
	if err := repo.CreatePet(ctx, db, pet); err != nil {
		return "", err
	}
	return pet.ID, nil
}

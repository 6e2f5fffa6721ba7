package store

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/mikey/maccafe-matcher/internal/core"
)

// Seed is the JSON document accepted by store.seed_file
type Seed struct {
	Profiles []SeedProfile `json:"profiles"`
	Contacts []SeedContact `json:"contacts"`
}

// SeedProfile is one profile row of a seed document
type SeedProfile struct {
	ID            string          `json:"id"`
	ContactID     string          `json:"contact_id"`
	Name          string          `json:"name"`
	AvatarPath    string          `json:"avatar_path"`
	SelfInterests []core.Interest `json:"self_interests"`
	SelfGender    core.Gender     `json:"self_gender"`
	SelfAgeRange  core.AgeRange   `json:"self_age_range"`
	WantInterests []core.Interest `json:"want_interests"`
	WantGender    core.Gender     `json:"want_gender"`
	WantAgeRange  core.AgeRange   `json:"want_age_range"`
	LastMatchedAt *time.Time      `json:"last_matched_at"`
	CreatedAt     *time.Time      `json:"created_at"`
}

// SeedContact maps a contact id to its email address
type SeedContact struct {
	ContactID string `json:"contact_id"`
	Email     string `json:"email"`
}

// LoadSeed reads a seed document from disk
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for i, p := range seed.Profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("seed profile %d has no id", i)
		}
	}

	return &seed, nil
}

// Profile converts the seed row into a core profile
func (p SeedProfile) Profile() core.Profile {
	return core.Profile{
		ID:            p.ID,
		ContactID:     p.ContactID,
		Name:          p.Name,
		AvatarPath:    p.AvatarPath,
		SelfInterests: p.SelfInterests,
		SelfGender:    p.SelfGender,
		SelfAgeRange:  p.SelfAgeRange,
		WantInterests: p.WantInterests,
		WantGender:    p.WantGender,
		WantAgeRange:  p.WantAgeRange,
		LastMatchedAt: p.LastMatchedAt,
	}
}

// createdAt returns the row's creation time, defaulting to base shifted by the
// row index so file order is kept as pool order
func (p SeedProfile) createdAt(base time.Time, index int) time.Time {
	if p.CreatedAt != nil {
		return p.CreatedAt.UTC()
	}
	return base.Add(time.Duration(index) * time.Microsecond)
}

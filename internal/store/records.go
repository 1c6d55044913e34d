package store

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"parallelcamera/internal/services"
)

// Collection names a record collection.
type Collection string

const (
	CollectionHistory    Collection = "history"
	CollectionCharacters Collection = "characters"
)

// ParseCollection resolves a collection name.
func ParseCollection(name string) (Collection, error) {
	switch c := Collection(strings.ToLower(strings.TrimSpace(name))); c {
	case CollectionHistory, CollectionCharacters:
		return c, nil
	default:
		return "", services.NewValidationError("collection", fmt.Sprintf("unknown collection %q", name))
	}
}

// Mode selects how a captured photo is reinterpreted.
type Mode string

const (
	ModeRealistic Mode = "realistic"
	ModeCreative  Mode = "creative"
	ModeMeta      Mode = "meta"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeRealistic, ModeCreative, ModeMeta:
		return true
	default:
		return false
	}
}

// ParseMode resolves a mode name, case-insensitively.
func ParseMode(value string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(value)))
	if !m.Valid() {
		return "", services.NewValidationError("mode", fmt.Sprintf("must be one of realistic, creative, meta (got %q)", value))
	}
	return m, nil
}

// Location is the GPS position a photo was taken at.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// HistoryRecord is one completed capture. Records are immutable once stored.
type HistoryRecord struct {
	ID              int64     `json:"id"`
	Description     string    `json:"description"`
	GeneratedImage  string    `json:"generatedImage"`
	OriginalImage   string    `json:"originalImage"`
	Location        *Location `json:"location,omitempty"`
	Mode            Mode      `json:"mode"`
	CreativeElement string    `json:"creativeElement,omitempty"`
	UserPrompt      string    `json:"userPrompt,omitempty"`
	CharacterName   string    `json:"characterName,omitempty"`
	Timestamp       int64     `json:"timestamp"`
}

// CharacterRecord is a user-defined character that can be placed into scenes.
type CharacterRecord struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	ReferenceImage string `json:"referenceImage"`
	Description    string `json:"description,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
	UsageCount     int64  `json:"usageCount"`
	LastUsedAt     *int64 `json:"lastUsedAt,omitempty"`
}

// CharacterPatch lists the character fields an update may change. Nil fields
// are left untouched.
type CharacterPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

const (
	maxCharacterNameLength        = 20
	maxCharacterDescriptionLength = 50
)

// ValidateHistory checks a history record before it is written.
func ValidateHistory(rec HistoryRecord) error {
	verr := &services.ValidationError{}
	if strings.TrimSpace(rec.Description) == "" {
		verr.Add("description", "is required")
	}
	if strings.TrimSpace(rec.GeneratedImage) == "" {
		verr.Add("generatedImage", "is required")
	}
	if strings.TrimSpace(rec.OriginalImage) == "" {
		verr.Add("originalImage", "is required")
	}
	if !rec.Mode.Valid() {
		verr.Add("mode", fmt.Sprintf("must be one of realistic, creative, meta (got %q)", rec.Mode))
	}
	if rec.CreativeElement != "" && rec.Mode != ModeCreative {
		verr.Add("creativeElement", "is only allowed in creative mode")
	}
	if rec.UserPrompt != "" && rec.Mode != ModeMeta {
		verr.Add("userPrompt", "is only allowed in meta mode")
	}
	validateLocation(verr, rec.Location)
	return verr.OrNil()
}

// ValidateLocation checks coordinate ranges.
func ValidateLocation(loc *Location) error {
	verr := &services.ValidationError{}
	validateLocation(verr, loc)
	return verr.OrNil()
}

func validateLocation(verr *services.ValidationError, loc *Location) {
	if loc == nil {
		return
	}
	if loc.Latitude < -90 || loc.Latitude > 90 {
		verr.Add("location.latitude", "must be within [-90, 90]")
	}
	if loc.Longitude < -180 || loc.Longitude > 180 {
		verr.Add("location.longitude", "must be within [-180, 180]")
	}
}

// NormalizeCharacterName trims and NFC-normalizes a character name.
func NormalizeCharacterName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateCharacter checks a character record before it is written. Name and
// description are expected to be normalized already.
func ValidateCharacter(rec CharacterRecord) error {
	verr := &services.ValidationError{}
	validateCharacterName(verr, rec.Name)
	validateCharacterDescription(verr, rec.Description)
	if strings.TrimSpace(rec.ReferenceImage) == "" {
		verr.Add("referenceImage", "is required")
	}
	return verr.OrNil()
}

func validateCharacterName(verr *services.ValidationError, name string) {
	n := utf8.RuneCountInString(name)
	switch {
	case n == 0:
		verr.Add("name", "is required")
	case n > maxCharacterNameLength:
		verr.Add("name", fmt.Sprintf("must be at most %d characters", maxCharacterNameLength))
	}
}

func validateCharacterDescription(verr *services.ValidationError, description string) {
	if utf8.RuneCountInString(description) > maxCharacterDescriptionLength {
		verr.Add("description", fmt.Sprintf("must be at most %d characters", maxCharacterDescriptionLength))
	}
}

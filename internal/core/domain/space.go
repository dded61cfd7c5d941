package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const MaxNameLength = 255

type Space struct {
	ID        string
	Name      string
	OwnerID   string
	OwnerName string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SpaceSummary is a space together with the number of products it holds.
type SpaceSummary struct {
	Space
	ProductCount int
}

type CreationStatus struct {
	CurrentCount   int
	MaxSpaces      int
	RemainingSlots int
	CanCreate      bool
}

// NormalizeName trims the name and enforces non-emptiness and the length cap.
func NormalizeName(kind, name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", Validationf("%s name is required", kind)
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return "", Validationf("%s name must be at most %d characters", kind, MaxNameLength)
	}
	return trimmed, nil
}

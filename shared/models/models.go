package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ID represents a unique identifier
type ID string

// GenerateUUID creates a new UUID
func GenerateUUID() ID {
	return ID(uuid.New().String())
}

// NewID creates an ID from string
func NewID(id string) (ID, error) {
	_, err := uuid.Parse(id)
	if err != nil {
		return "", err
	}
	return ID(id), nil
}

// DeriveID returns a name-based (v5) UUID. The same namespace and name always
// produce the same ID.
func DeriveID(namespace, name string) ID {
	ns := uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace))
	return ID(uuid.NewSHA1(ns, []byte(name)).String())
}

// String returns string representation
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the ID is empty
func (id ID) IsZero() bool {
	return id == ""
}

// Timestamps represents creation and update times
type Timestamps struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTimestamps creates timestamps set to now
func NewTimestamps(now time.Time) Timestamps {
	return Timestamps{
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch returns a copy with UpdatedAt moved to now
func (t Timestamps) Touch(now time.Time) Timestamps {
	t.UpdatedAt = now
	return t
}

// Version represents entity version for optimistic locking
type Version struct {
	Value int
}

// NewVersion creates new version
func NewVersion() Version {
	return Version{Value: 1}
}

// Next increments version
func (v Version) Next() Version {
	v.Value++
	return v
}

// MustAmount parses a decimal amount such as "25.00" and panics if it is malformed
func MustAmount(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

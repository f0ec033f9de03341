package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrExists is returned when an insert violates a uniqueness constraint.
var ErrExists = errors.New("already exists")

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Item struct {
	ID        int64
	UserID    string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type RequestRecord struct {
	ID        string
	UserID    string
	Input     string
	Outcome   string
	Detail    string
	CreatedAt time.Time
}

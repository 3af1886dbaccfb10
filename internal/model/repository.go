package model

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by lookups for an unknown id.
	ErrNotFound = errors.New("record not found")

	// ErrExists is returned when creating a record whose id is taken.
	ErrExists = errors.New("record already exists")

	// ErrUnknownReference is returned when a post names a user or totem that
	// does not exist.
	ErrUnknownReference = errors.New("referenced record not found")
)

// Repository is the record store consumed by the service layer. It is
// implemented by the file-based database and by the SQLite variant.
//
// Create* normalize and validate the record first. A post's UserID and
// SourceTotem must name existing records.
type Repository interface {
	CreateUser(ctx context.Context, u User) error
	CreatePost(ctx context.Context, p Post) error
	CreateTotem(ctx context.Context, t Totem) error

	UserByID(ctx context.Context, id string) (User, error)
	PostByID(ctx context.Context, id string) (Post, error)
	TotemByID(ctx context.Context, id string) (Totem, error)

	// PostIDsInRange returns the ids of posts whose timestamp lies in
	// [start, end], both bounds inclusive, ordered by timestamp then id.
	PostIDsInRange(ctx context.Context, start, end time.Time) ([]string, error)

	Close() error
}

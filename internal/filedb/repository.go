package filedb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/loomstore/internal/model"
	"github.com/roach88/loomstore/internal/worker"
)

// Repository implements model.Repository over a DB. Every operation runs on
// the repository's own worker goroutine, so callers never block on disk I/O
// and concurrent callers are serialized.
type Repository struct {
	db *DB
	w  *worker.Worker
}

var _ model.Repository = (*Repository)(nil)

// OpenRepository opens the database in dir and starts its worker.
func OpenRepository(dir string, opts Options) (*Repository, error) {
	db, err := Open(dir, opts)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db, w: worker.New("filedb", opts.Logger)}, nil
}

// CreateUser validates and appends u. Fails with model.ErrExists if the id
// is taken.
func (r *Repository) CreateUser(ctx context.Context, u model.User) error {
	u = u.Normalized()
	if err := u.Validate(); err != nil {
		return err
	}
	return worker.Do(ctx, r.w, func() error {
		if err := r.absent(r.db.UserByID(u.ID)); err != nil {
			return fmt.Errorf("create user %s: %w", u.ID, err)
		}
		return r.db.WriteUser(u)
	})
}

// CreateTotem validates and appends t.
func (r *Repository) CreateTotem(ctx context.Context, t model.Totem) error {
	t = t.Normalized()
	if err := t.Validate(); err != nil {
		return err
	}
	return worker.Do(ctx, r.w, func() error {
		if err := r.absent(r.db.TotemByID(t.ID)); err != nil {
			return fmt.Errorf("create totem %s: %w", t.ID, err)
		}
		return r.db.WriteTotem(t)
	})
}

// CreatePost validates and appends p. Its author and source totem must
// already exist.
func (r *Repository) CreatePost(ctx context.Context, p model.Post) error {
	p = p.Normalized()
	if err := p.Validate(); err != nil {
		return err
	}
	return worker.Do(ctx, r.w, func() error {
		if err := r.absent(r.db.PostByID(p.ID)); err != nil {
			return fmt.Errorf("create post %s: %w", p.ID, err)
		}
		if err := r.present(r.db.UserByID(p.UserID)); err != nil {
			return fmt.Errorf("create post %s: user %s: %w", p.ID, p.UserID, err)
		}
		if err := r.present(r.db.TotemByID(p.SourceTotem)); err != nil {
			return fmt.Errorf("create post %s: totem %s: %w", p.ID, p.SourceTotem, err)
		}
		return r.db.WritePost(p)
	})
}

// UserByID looks up a user; model.ErrNotFound if none.
func (r *Repository) UserByID(ctx context.Context, id string) (model.User, error) {
	return worker.Call(ctx, r.w, func() (model.User, error) { return r.db.UserByID(id) })
}

// PostByID looks up a post; model.ErrNotFound if none.
func (r *Repository) PostByID(ctx context.Context, id string) (model.Post, error) {
	return worker.Call(ctx, r.w, func() (model.Post, error) { return r.db.PostByID(id) })
}

// TotemByID looks up a totem; model.ErrNotFound if none.
func (r *Repository) TotemByID(ctx context.Context, id string) (model.Totem, error) {
	return worker.Call(ctx, r.w, func() (model.Totem, error) { return r.db.TotemByID(id) })
}

// PostIDsInRange returns ids of posts with start <= timestamp <= end.
func (r *Repository) PostIDsInRange(ctx context.Context, start, end time.Time) ([]string, error) {
	return worker.Call(ctx, r.w, func() ([]string, error) { return r.db.PostIDsInRange(start, end) })
}

// Close waits for queued operations, closes the logs and stops the worker.
func (r *Repository) Close() error {
	err := worker.Do(context.Background(), r.w, r.db.Close)
	r.w.Close()
	if errors.Is(err, worker.ErrClosed) {
		return nil
	}
	return err
}

// absent turns a lookup result into ErrExists when the record was found.
func (r *Repository) absent(_ any, err error) error {
	switch {
	case err == nil:
		return model.ErrExists
	case errors.Is(err, model.ErrNotFound):
		return nil
	default:
		return err
	}
}

// present turns a lookup miss into ErrUnknownReference.
func (r *Repository) present(_ any, err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return model.ErrUnknownReference
	}
	return err
}

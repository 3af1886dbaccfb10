package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/loomstore/internal/model"
)

// timeLayout is fixed width in UTC so TEXT comparison orders chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// nullable stores an absent optional reference as NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateUser inserts a user.
// Uses ON CONFLICT(id) DO NOTHING; a skipped insert is reported as
// model.ErrExists.
func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	u = u.Normalized()
	if err := u.Validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users
		(id, username, status, bio, profile_picture, last_contact)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		u.ID,
		u.Username,
		u.Status,
		u.Bio,
		nullable(u.ProfilePicture),
		formatTime(u.LastContact),
	)
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.ID, err)
	}
	return inserted(res, "user", u.ID)
}

// CreateTotem inserts a totem.
func (s *Store) CreateTotem(ctx context.Context, t model.Totem) error {
	t = t.Normalized()
	if err := t.Validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO totems
		(id, name, location, last_contact)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		t.ID,
		t.Name,
		t.Location,
		formatTime(t.LastContact),
	)
	if err != nil {
		return fmt.Errorf("create totem %s: %w", t.ID, err)
	}
	return inserted(res, "totem", t.ID)
}

// CreatePost inserts a post.
//
// Note: user_id and source_totem must reference existing rows (foreign key
// constraints); a violation is reported as model.ErrUnknownReference.
func (s *Store) CreatePost(ctx context.Context, p model.Post) error {
	p = p.Normalized()
	if err := p.Validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO posts
		(id, user_id, title, body, timestamp, image, source_totem)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		p.ID,
		p.UserID,
		p.Title,
		p.Body,
		formatTime(p.Timestamp),
		nullable(p.Image),
		p.SourceTotem,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("create post %s: %w", p.ID, model.ErrUnknownReference)
		}
		return fmt.Errorf("create post %s: %w", p.ID, err)
	}
	return inserted(res, "post", p.ID)
}

func inserted(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create %s %s: %w", entity, id, err)
	}
	if n == 0 {
		return fmt.Errorf("create %s %s: %w", entity, id, model.ErrExists)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

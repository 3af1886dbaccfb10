package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/loomstore/internal/model"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// UserByID returns the user with the given id, or model.ErrNotFound.
func (s *Store) UserByID(ctx context.Context, id string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, status, bio, profile_picture, last_contact
		FROM users
		WHERE id = ?
	`, id)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	return u, err
}

// TotemByID returns the totem with the given id, or model.ErrNotFound.
func (s *Store) TotemByID(ctx context.Context, id string) (model.Totem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, location, last_contact
		FROM totems
		WHERE id = ?
	`, id)

	t, err := scanTotem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Totem{}, fmt.Errorf("totem %s: %w", id, model.ErrNotFound)
	}
	return t, err
}

// PostByID returns the post with the given id, or model.ErrNotFound.
func (s *Store) PostByID(ctx context.Context, id string) (model.Post, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, body, timestamp, image, source_totem
		FROM posts
		WHERE id = ?
	`, id)

	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Post{}, fmt.Errorf("post %s: %w", id, model.ErrNotFound)
	}
	return p, err
}

// PostIDsInRange returns ids of posts with start <= timestamp <= end.
// Results are ordered deterministically: ORDER BY timestamp ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if no posts match.
func (s *Store) PostIDsInRange(ctx context.Context, start, end time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM posts
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, id COLLATE BINARY ASC
	`, formatTime(start), formatTime(end))
	if err != nil {
		return nil, fmt.Errorf("query posts in range: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan post id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return ids, nil
}

// Counts returns the number of rows per table.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, 3)
	for _, table := range []string{"users", "totems", "posts"} {
		var n int
		// Table names come from the fixed list above.
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u           model.User
		picture     sql.NullString
		lastContact string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Status, &u.Bio, &picture, &lastContact); err != nil {
		return model.User{}, err
	}

	ts, err := parseTime(lastContact)
	if err != nil {
		return model.User{}, fmt.Errorf("user %s: parse last_contact: %w", u.ID, err)
	}
	u.ProfilePicture = picture.String
	u.LastContact = ts
	return u, nil
}

func scanTotem(row rowScanner) (model.Totem, error) {
	var (
		t           model.Totem
		lastContact string
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Location, &lastContact); err != nil {
		return model.Totem{}, err
	}

	ts, err := parseTime(lastContact)
	if err != nil {
		return model.Totem{}, fmt.Errorf("totem %s: parse last_contact: %w", t.ID, err)
	}
	t.LastContact = ts
	return t, nil
}

func scanPost(row rowScanner) (model.Post, error) {
	var (
		p         model.Post
		image     sql.NullString
		timestamp string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Body, &timestamp, &image, &p.SourceTotem); err != nil {
		return model.Post{}, err
	}

	ts, err := parseTime(timestamp)
	if err != nil {
		return model.Post{}, fmt.Errorf("post %s: parse timestamp: %w", p.ID, err)
	}
	p.Image = image.String
	p.Timestamp = ts
	return p, nil
}

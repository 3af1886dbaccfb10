package filedb

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/loomstore/internal/model"
	"github.com/roach88/loomstore/internal/recordlog"
)

// UserByID returns the first user with the given id.
func (db *DB) UserByID(id string) (model.User, error) {
	users, err := db.ReadUsersMatch(1, func(u *model.User) bool { return u.ID == id })
	if err != nil {
		return model.User{}, err
	}
	if len(users) == 0 {
		return model.User{}, fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	return users[0], nil
}

// PostByID returns the first post with the given id.
func (db *DB) PostByID(id string) (model.Post, error) {
	posts, err := db.ReadPostsMatch(1, func(p *model.Post) bool { return p.ID == id })
	if err != nil {
		return model.Post{}, err
	}
	if len(posts) == 0 {
		return model.Post{}, fmt.Errorf("post %s: %w", id, model.ErrNotFound)
	}
	return posts[0], nil
}

// TotemByID returns the first totem with the given id.
func (db *DB) TotemByID(id string) (model.Totem, error) {
	totems, err := db.ReadTotemsMatch(1, func(t *model.Totem) bool { return t.ID == id })
	if err != nil {
		return model.Totem{}, err
	}
	if len(totems) == 0 {
		return model.Totem{}, fmt.Errorf("totem %s: %w", id, model.ErrNotFound)
	}
	return totems[0], nil
}

type postKey struct {
	ts time.Time
	id string
}

// PostIDsInRange scans every post and returns the ids of those with
// start <= timestamp <= end, ordered by timestamp then id.
func (db *DB) PostIDsInRange(start, end time.Time) ([]string, error) {
	keys, err := ScanPosts(db, recordlog.Unlimited,
		func(p *model.Post) bool {
			return !p.Timestamp.Before(start) && !p.Timestamp.After(end)
		},
		func(p model.Post) postKey { return postKey{ts: p.Timestamp, id: p.ID} },
	)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(keys, func(a, b postKey) int {
		if c := a.ts.Compare(b.ts); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = k.id
	}
	return ids, nil
}

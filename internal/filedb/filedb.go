package filedb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/roach88/loomstore/internal/codec"
	"github.com/roach88/loomstore/internal/logger"
	"github.com/roach88/loomstore/internal/metrics"
	"github.com/roach88/loomstore/internal/model"
	"github.com/roach88/loomstore/internal/recordlog"
)

// Log file names inside the database directory.
const (
	UsersFile  = "users.bin"
	PostsFile  = "posts.bin"
	TotemsFile = "totems.bin"
)

// Options configure a DB.
type Options struct {
	Durable        bool
	MaxFrameSize   int
	RepairTornTail bool

	Logger  *zerolog.Logger
	Metrics *metrics.Recorder
}

// DB stores users, posts and totems in one record log each.
//
// DB is synchronous and not safe for concurrent use; Repository serializes
// access through a worker.
type DB struct {
	dir    string
	users  *recordlog.Log
	posts  *recordlog.Log
	totems *recordlog.Log
	log    zerolog.Logger
}

// Open creates dir if needed and opens the three entity logs inside it.
func Open(dir string, opts Options) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filedb: create directory: %w", err)
	}

	db := &DB{
		dir: dir,
		log: logger.Component(logger.OrNop(opts.Logger), "filedb").With().Str("dir", dir).Logger(),
	}

	open := func(file, entity string) (*recordlog.Log, error) {
		l, err := recordlog.Open(filepath.Join(dir, file), recordlog.Options{
			Durable:        opts.Durable,
			MaxFrameSize:   opts.MaxFrameSize,
			RepairTornTail: opts.RepairTornTail,
			Tags:           []string{metrics.Tag(metrics.TagEntity, entity)},
			Logger:         opts.Logger,
			Metrics:        opts.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("filedb: open %s log: %w", entity, err)
		}
		return l, nil
	}

	var err error
	if db.users, err = open(UsersFile, "user"); err != nil {
		return nil, err
	}
	if db.posts, err = open(PostsFile, "post"); err != nil {
		db.users.Close()
		return nil, err
	}
	if db.totems, err = open(TotemsFile, "totem"); err != nil {
		db.users.Close()
		db.posts.Close()
		return nil, err
	}

	db.log.Debug().Msg("file database opened")
	return db, nil
}

// Dir returns the database directory.
func (db *DB) Dir() string { return db.dir }

// WriteUser appends one user.
func (db *DB) WriteUser(u model.User) error {
	return db.WriteUsers([]model.User{u})
}

// WriteUsers appends users as one batch: one flush and at most one sync.
// Every record is normalized and validated before anything is written.
func (db *DB) WriteUsers(users []model.User) error {
	payloads := make([][]byte, 0, len(users))
	for i := range users {
		u := users[i].Normalized()
		if err := u.Validate(); err != nil {
			return fmt.Errorf("write users: record %d: %w", i, err)
		}
		payloads = append(payloads, codec.EncodeUser(&u))
	}
	if err := db.users.AppendBatch(payloads); err != nil {
		return fmt.Errorf("write users: %w", err)
	}
	return nil
}

// WritePost appends one post.
func (db *DB) WritePost(p model.Post) error {
	return db.WritePosts([]model.Post{p})
}

// WritePosts appends posts as one batch.
func (db *DB) WritePosts(posts []model.Post) error {
	payloads := make([][]byte, 0, len(posts))
	for i := range posts {
		p := posts[i].Normalized()
		if err := p.Validate(); err != nil {
			return fmt.Errorf("write posts: record %d: %w", i, err)
		}
		payloads = append(payloads, codec.EncodePost(&p))
	}
	if err := db.posts.AppendBatch(payloads); err != nil {
		return fmt.Errorf("write posts: %w", err)
	}
	return nil
}

// WriteTotem appends one totem.
func (db *DB) WriteTotem(t model.Totem) error {
	return db.WriteTotems([]model.Totem{t})
}

// WriteTotems appends totems as one batch.
func (db *DB) WriteTotems(totems []model.Totem) error {
	payloads := make([][]byte, 0, len(totems))
	for i := range totems {
		t := totems[i].Normalized()
		if err := t.Validate(); err != nil {
			return fmt.Errorf("write totems: record %d: %w", i, err)
		}
		payloads = append(payloads, codec.EncodeTotem(&t))
	}
	if err := db.totems.AppendBatch(payloads); err != nil {
		return fmt.Errorf("write totems: %w", err)
	}
	return nil
}

// ReadUsers returns up to limit users in insertion order.
func (db *DB) ReadUsers(limit int) ([]model.User, error) {
	return db.ReadUsersMatch(limit, nil)
}

// ReadUsersMatch returns up to limit users for which match returns true.
func (db *DB) ReadUsersMatch(limit int, match func(*model.User) bool) ([]model.User, error) {
	return recordlog.Collect(db.users, limit, codec.DecodeUser, match)
}

// ScanUsers filters users, then maps only the kept ones.
func ScanUsers[R any](db *DB, limit int, filter func(*model.User) bool, mapFn func(model.User) R) ([]R, error) {
	return recordlog.Scan(db.users, limit, codec.DecodeUser, filter, mapFn)
}

// ReadPosts returns up to limit posts in insertion order.
func (db *DB) ReadPosts(limit int) ([]model.Post, error) {
	return db.ReadPostsMatch(limit, nil)
}

// ReadPostsMatch returns up to limit posts for which match returns true.
func (db *DB) ReadPostsMatch(limit int, match func(*model.Post) bool) ([]model.Post, error) {
	return recordlog.Collect(db.posts, limit, codec.DecodePost, match)
}

// ScanPosts filters posts, then maps only the kept ones.
func ScanPosts[R any](db *DB, limit int, filter func(*model.Post) bool, mapFn func(model.Post) R) ([]R, error) {
	return recordlog.Scan(db.posts, limit, codec.DecodePost, filter, mapFn)
}

// ReadTotems returns up to limit totems in insertion order.
func (db *DB) ReadTotems(limit int) ([]model.Totem, error) {
	return db.ReadTotemsMatch(limit, nil)
}

// ReadTotemsMatch returns up to limit totems for which match returns true.
func (db *DB) ReadTotemsMatch(limit int, match func(*model.Totem) bool) ([]model.Totem, error) {
	return recordlog.Collect(db.totems, limit, codec.DecodeTotem, match)
}

// ScanTotems filters totems, then maps only the kept ones.
func ScanTotems[R any](db *DB, limit int, filter func(*model.Totem) bool, mapFn func(model.Totem) R) ([]R, error) {
	return recordlog.Scan(db.totems, limit, codec.DecodeTotem, filter, mapFn)
}

// Stats reports frame statistics for each entity log, keyed by file name.
func (db *DB) Stats() (map[string]recordlog.Stats, error) {
	out := make(map[string]recordlog.Stats, 3)
	for name, l := range map[string]*recordlog.Log{
		UsersFile:  db.users,
		PostsFile:  db.posts,
		TotemsFile: db.totems,
	} {
		st, err := l.Stat()
		if err != nil {
			return nil, fmt.Errorf("filedb: stat %s: %w", name, err)
		}
		out[name] = st
	}
	return out, nil
}

// Close closes every entity log.
func (db *DB) Close() error {
	return errors.Join(db.users.Close(), db.posts.Close(), db.totems.Close())
}

// Package store provides the SQLite-backed variant of the record database.
//
// Store implements model.Repository with three tables:
//   - users: id, username, status, bio, profile_picture (NULL when absent), last_contact
//   - totems: id, name, location, last_contact
//   - posts: id, user_id -> users, title, body, timestamp, image (NULL when absent),
//     source_totem -> totems
//
// # Conventions
//
// Time: stored as UTC TEXT in a fixed-width layout with nanoseconds, so
// range predicates compare lexically and read back exactly.
//
// Ordering: range queries use ORDER BY timestamp ASC, id ASC COLLATE BINARY,
// matching the file-based database.
//
// Idempotency: inserts use ON CONFLICT(id) DO NOTHING; a skipped insert is
// reported as model.ErrExists. A foreign key violation is reported as
// model.ErrUnknownReference.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store

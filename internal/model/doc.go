// Package model defines the domain records persisted by loomstore: users,
// posts and totems.
//
// Text fields are bounded in bytes after NFC normalization (see the Max*
// constants). Optional references (User.ProfilePicture, Post.Image) use the
// empty string for "absent". Identifiers are UUIDv7 strings by default.
//
// model imports nothing internal; storage packages depend on it.
package model

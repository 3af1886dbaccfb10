package model

import "time"

// Field bounds in bytes, measured after NFC normalization.
const (
	MaxIDLen         = 36
	MaxUsernameLen   = 32
	MaxStatusLen     = 16
	MaxBioLen        = 160
	MaxTitleLen      = 64
	MaxBodyLen       = 512
	MaxTotemNameLen  = 32
	MaxLocationLen   = 64
	MaxImageRefLen   = 36
	MaxPictureRefLen = MaxImageRefLen
)

// Well-known user statuses. Status is free text up to MaxStatusLen; these are
// the values the rest of the system filters on.
const (
	StatusOnline  = "Online"
	StatusOffline = "Offline"
	StatusAway    = "Away"
)

// User is a person known to the device.
type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Status         string    `json:"status"`
	Bio            string    `json:"bio"`
	ProfilePicture string    `json:"profile_picture,omitempty"` // empty when absent
	LastContact    time.Time `json:"last_contact"`
}

// HasProfilePicture reports whether the user references a picture.
func (u *User) HasProfilePicture() bool { return u.ProfilePicture != "" }

// Post is a message authored by a user and received through a totem.
type Post struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Timestamp   time.Time `json:"timestamp"`
	Image       string    `json:"image,omitempty"` // empty when absent
	SourceTotem string    `json:"source_totem"`
}

// HasImage reports whether the post references an image.
func (p *Post) HasImage() bool { return p.Image != "" }

// Totem is a physical relay that posts pass through.
type Totem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	LastContact time.Time `json:"last_contact"`
}

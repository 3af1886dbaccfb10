package model

import (
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidRecord is wrapped by every *FieldError.
var ErrInvalidRecord = errors.New("invalid record")

// FieldError reports a field that violates its bound.
type FieldError struct {
	Entity string
	Field  string
	Len    int
	Max    int
	Reason string
}

func (e *FieldError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s.%s: %s", e.Entity, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s.%s: %d bytes exceeds limit of %d", e.Entity, e.Field, e.Len, e.Max)
}

func (e *FieldError) Unwrap() error { return ErrInvalidRecord }

// Normalized returns a copy with every text field in NFC form.
func (u User) Normalized() User {
	u.ID = norm.NFC.String(u.ID)
	u.Username = norm.NFC.String(u.Username)
	u.Status = norm.NFC.String(u.Status)
	u.Bio = norm.NFC.String(u.Bio)
	u.ProfilePicture = norm.NFC.String(u.ProfilePicture)
	return u
}

// Validate checks required fields and length bounds. Call it on a
// normalized record.
func (u *User) Validate() error {
	return firstError(
		required("user", "id", u.ID),
		bounded("user", "id", u.ID, MaxIDLen),
		bounded("user", "username", u.Username, MaxUsernameLen),
		bounded("user", "status", u.Status, MaxStatusLen),
		bounded("user", "bio", u.Bio, MaxBioLen),
		bounded("user", "profile_picture", u.ProfilePicture, MaxPictureRefLen),
	)
}

// Normalized returns a copy with every text field in NFC form.
func (p Post) Normalized() Post {
	p.ID = norm.NFC.String(p.ID)
	p.UserID = norm.NFC.String(p.UserID)
	p.Title = norm.NFC.String(p.Title)
	p.Body = norm.NFC.String(p.Body)
	p.Image = norm.NFC.String(p.Image)
	p.SourceTotem = norm.NFC.String(p.SourceTotem)
	return p
}

// Validate checks required fields and length bounds.
func (p *Post) Validate() error {
	return firstError(
		required("post", "id", p.ID),
		bounded("post", "id", p.ID, MaxIDLen),
		required("post", "user_id", p.UserID),
		bounded("post", "user_id", p.UserID, MaxIDLen),
		bounded("post", "title", p.Title, MaxTitleLen),
		bounded("post", "body", p.Body, MaxBodyLen),
		bounded("post", "image", p.Image, MaxImageRefLen),
		required("post", "source_totem", p.SourceTotem),
		bounded("post", "source_totem", p.SourceTotem, MaxIDLen),
	)
}

// Normalized returns a copy with every text field in NFC form.
func (t Totem) Normalized() Totem {
	t.ID = norm.NFC.String(t.ID)
	t.Name = norm.NFC.String(t.Name)
	t.Location = norm.NFC.String(t.Location)
	return t
}

// Validate checks required fields and length bounds.
func (t *Totem) Validate() error {
	return firstError(
		required("totem", "id", t.ID),
		bounded("totem", "id", t.ID, MaxIDLen),
		bounded("totem", "name", t.Name, MaxTotemNameLen),
		bounded("totem", "location", t.Location, MaxLocationLen),
	)
}

func required(entity, field, v string) error {
	if v == "" {
		return &FieldError{Entity: entity, Field: field, Reason: "required"}
	}
	return nil
}

func bounded(entity, field, v string, max int) error {
	if len(v) > max {
		return &FieldError{Entity: entity, Field: field, Len: len(v), Max: max}
	}
	return nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

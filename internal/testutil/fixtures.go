package testutil

import (
	"time"

	"github.com/roach88/loomstore/internal/model"
)

// Fixture ids shared by storage tests.
const (
	AliceID   = "550e8400-e29b-41d4-a716-446655440000"
	BobID     = "550e8400-e29b-41d4-a716-446655440001"
	CharlieID = "550e8400-e29b-41d4-a716-446655440002"

	TotemOneID = "990e8400-e29b-41d4-a716-446655440011"
	TotemTwoID = "990e8400-e29b-41d4-a716-446655440012"

	FirstPostID  = "123e4567-e89b-12d3-a456-426614174000"
	SecondPostID = "123e4567-e89b-12d3-a456-426614174001"
	ThirdPostID  = "123e4567-e89b-12d3-a456-426614174002"

	PictureOneID   = "000e8400-e29b-41d4-a716-446655440021"
	PictureThreeID = "000e8400-e29b-41d4-a716-446655440023"
	ImageID        = "000e8400-e29b-41d4-a716-446655440022"
	ImageTwoID     = "000e8400-e29b-41d4-a716-446655440024"
)

// Users returns alice (Online, with picture), bob (Offline) and charlie
// (Online, with picture), stamped from clock.
func Users(clock *DeterministicClock) []model.User {
	return []model.User{
		{
			ID:             AliceID,
			Username:       "alice",
			Status:         model.StatusOnline,
			Bio:            "Test user 1",
			ProfilePicture: PictureOneID,
			LastContact:    clock.Next(),
		},
		{
			ID:          BobID,
			Username:    "bob",
			Status:      model.StatusOffline,
			Bio:         "Test user 2",
			LastContact: clock.Next(),
		},
		{
			ID:             CharlieID,
			Username:       "charlie",
			Status:         model.StatusOnline,
			Bio:            "Test user 3",
			ProfilePicture: PictureThreeID,
			LastContact:    clock.Next(),
		},
	}
}

// Totems returns "Totem One" at "Location A" and "Totem Two" at "Location B".
func Totems(clock *DeterministicClock) []model.Totem {
	return []model.Totem{
		{ID: TotemOneID, Name: "Totem One", Location: "Location A", LastContact: clock.Next()},
		{ID: TotemTwoID, Name: "Totem Two", Location: "Location B", LastContact: clock.Next()},
	}
}

// Posts returns three posts in timestamp order: the first by alice without
// an image, the second by bob with one, the third by alice with one.
func Posts(clock *DeterministicClock) []model.Post {
	return []model.Post{
		{
			ID:          FirstPostID,
			UserID:      AliceID,
			Title:       "First Post",
			Body:        "This is the first post",
			Timestamp:   clock.Next(),
			SourceTotem: TotemOneID,
		},
		{
			ID:          SecondPostID,
			UserID:      BobID,
			Title:       "Second Post",
			Body:        "This is the second post",
			Timestamp:   clock.Next(),
			Image:       ImageID,
			SourceTotem: TotemOneID,
		},
		{
			ID:          ThirdPostID,
			UserID:      AliceID,
			Title:       "Third Post",
			Body:        "This is the third post",
			Timestamp:   clock.Next(),
			Image:       ImageTwoID,
			SourceTotem: TotemTwoID,
		},
	}
}

// Post returns a minimal valid post by alice from Totem One at ts.
func Post(id string, ts time.Time) model.Post {
	return model.Post{
		ID:          id,
		UserID:      AliceID,
		Title:       "post " + id,
		Body:        "body",
		Timestamp:   ts.UTC(),
		SourceTotem: TotemOneID,
	}
}

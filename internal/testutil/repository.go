package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loomstore/internal/model"
)

// RepositoryContract runs the behavior every model.Repository must share
// against repositories produced by open. open must return an empty
// repository; RepositoryContract closes it.
func RepositoryContract(t *testing.T, open func(t *testing.T) model.Repository) {
	t.Run("create and look up", func(t *testing.T) {
		repo := open(t)
		defer repo.Close()
		ctx := context.Background()
		clock := NewDeterministicClock(Epoch, time.Second)

		seed(t, repo, clock)

		alice, err := repo.UserByID(ctx, AliceID)
		require.NoError(t, err)
		assert.Equal(t, "alice", alice.Username)
		assert.Equal(t, PictureOneID, alice.ProfilePicture)
		assert.True(t, alice.LastContact.Equal(Epoch.Add(time.Second)))

		bob, err := repo.UserByID(ctx, BobID)
		require.NoError(t, err)
		assert.False(t, bob.HasProfilePicture())

		totem, err := repo.TotemByID(ctx, TotemTwoID)
		require.NoError(t, err)
		assert.Equal(t, "Location B", totem.Location)

		post, err := repo.PostByID(ctx, SecondPostID)
		require.NoError(t, err)
		assert.Equal(t, "Second Post", post.Title)
		assert.Equal(t, ImageID, post.Image)
		assert.Equal(t, BobID, post.UserID)
		assert.Equal(t, TotemOneID, post.SourceTotem)
	})

	t.Run("unknown ids", func(t *testing.T) {
		repo := open(t)
		defer repo.Close()
		ctx := context.Background()

		_, err := repo.UserByID(ctx, "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = repo.PostByID(ctx, "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = repo.TotemByID(ctx, "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("duplicate id", func(t *testing.T) {
		repo := open(t)
		defer repo.Close()
		ctx := context.Background()
		clock := NewDeterministicClock(Epoch, time.Second)

		u := Users(clock)[0]
		require.NoError(t, repo.CreateUser(ctx, u))
		u.Username = "impostor"
		assert.ErrorIs(t, repo.CreateUser(ctx, u), model.ErrExists)

		got, err := repo.UserByID(ctx, AliceID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
	})

	t.Run("post references must exist", func(t *testing.T) {
		repo := open(t)
		defer repo.Close()
		ctx := context.Background()
		clock := NewDeterministicClock(Epoch, time.Second)

		p := Posts(clock)[0]
		assert.ErrorIs(t, repo.CreatePost(ctx, p), model.ErrUnknownReference)

		require.NoError(t, repo.CreateUser(ctx, Users(clock)[0]))
		assert.ErrorIs(t, repo.CreatePost(ctx, p), model.ErrUnknownReference)

		require.NoError(t, repo.CreateTotem(ctx, Totems(clock)[0]))
		assert.NoError(t, repo.CreatePost(ctx, p))
	})

	t.Run("invalid record", func(t *testing.T) {
		repo := open(t)
		defer repo.Close()

		err := repo.CreateTotem(context.Background(), model.Totem{Name: "no id"})
		assert.ErrorIs(t, err, model.ErrInvalidRecord)
	})

	t.Run("post ids in inclusive range", func(t *testing.T) {
		repo := open(t)
		defer repo.Close()
		ctx := context.Background()
		clock := NewDeterministicClock(Epoch, time.Second)

		seed(t, repo, clock)
		posts := Posts(NewDeterministicClock(Epoch.Add(5*time.Second), time.Second))
		first, third := posts[0].Timestamp, posts[2].Timestamp

		ids, err := repo.PostIDsInRange(ctx, first, third)
		require.NoError(t, err)
		assert.Equal(t, []string{FirstPostID, SecondPostID, ThirdPostID}, ids)

		ids, err = repo.PostIDsInRange(ctx, first.Add(time.Nanosecond), third)
		require.NoError(t, err)
		assert.Equal(t, []string{SecondPostID, ThirdPostID}, ids)

		ids, err = repo.PostIDsInRange(ctx, third, third)
		require.NoError(t, err)
		assert.Equal(t, []string{ThirdPostID}, ids)

		ids, err = repo.PostIDsInRange(ctx, third.Add(time.Hour), third.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("range ordered by timestamp then id", func(t *testing.T) {
		repo := open(t)
		defer repo.Close()
		ctx := context.Background()
		clock := NewDeterministicClock(Epoch, time.Second)

		require.NoError(t, repo.CreateUser(ctx, Users(clock)[0]))
		require.NoError(t, repo.CreateTotem(ctx, Totems(clock)[0]))

		late := Epoch.Add(time.Hour)
		early := Epoch.Add(time.Minute)
		for _, p := range []model.Post{Post("p-c", late), Post("p-b", early), Post("p-a", late)} {
			require.NoError(t, repo.CreatePost(ctx, p))
		}

		ids, err := repo.PostIDsInRange(ctx, Epoch, late)
		require.NoError(t, err)
		assert.Equal(t, []string{"p-b", "p-a", "p-c"}, ids)
	})
}

// seed creates the standard users, totems and posts; posts are stamped
// Epoch+6s..Epoch+8s.
func seed(t *testing.T, repo model.Repository, clock *DeterministicClock) {
	t.Helper()
	ctx := context.Background()

	for _, u := range Users(clock) {
		require.NoError(t, repo.CreateUser(ctx, u))
	}
	for _, tot := range Totems(clock) {
		require.NoError(t, repo.CreateTotem(ctx, tot))
	}
	for _, p := range Posts(clock) {
		require.NoError(t, repo.CreatePost(ctx, p))
	}
}

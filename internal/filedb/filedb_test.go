package filedb

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loomstore/internal/model"
	"github.com/roach88/loomstore/internal/recordlog"
	"github.com/roach88/loomstore/internal/testutil"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "fbdb"), Options{Durable: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newClock() *testutil.DeterministicClock {
	return testutil.NewDeterministicClock(testutil.Epoch, time.Second)
}

func TestOpen_CreatesDirectoryButNoFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	db, err := Open(dir, Options{})
	require.NoError(t, err)
	defer db.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, dir, db.Dir())
}

func TestWriteReadUsers(t *testing.T) {
	db := openTestDB(t)
	users := testutil.Users(newClock())

	require.NoError(t, db.WriteUsers(users[:2]))

	got, err := db.ReadUsers(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Username)
	assert.Equal(t, "bob", got[1].Username)
	assert.Equal(t, users[:2], got)

	limited, err := db.ReadUsers(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "alice", limited[0].Username)

	online, err := db.ReadUsersMatch(10, func(u *model.User) bool { return u.Status == model.StatusOnline })
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, "alice", online[0].Username)
}

func TestWriteReadPosts(t *testing.T) {
	db := openTestDB(t)
	posts := testutil.Posts(newClock())

	require.NoError(t, db.WritePosts(posts[:2]))

	got, err := db.ReadPosts(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "First Post", got[0].Title)
	assert.Equal(t, "Second Post", got[1].Title)

	withImage, err := db.ReadPostsMatch(10, (*model.Post).HasImage)
	require.NoError(t, err)
	require.Len(t, withImage, 1)
	assert.Equal(t, "Second Post", withImage[0].Title)
}

func TestWriteReadTotems(t *testing.T) {
	db := openTestDB(t)
	totems := testutil.Totems(newClock())

	require.NoError(t, db.WriteTotem(totems[0]))
	require.NoError(t, db.WriteTotem(totems[1]))

	got, err := db.ReadTotems(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Totem One", got[0].Name)
	assert.Equal(t, "Totem Two", got[1].Name)

	atA, err := db.ReadTotemsMatch(10, func(t *model.Totem) bool { return t.Location == "Location A" })
	require.NoError(t, err)
	require.Len(t, atA, 1)
	assert.Equal(t, testutil.TotemOneID, atA[0].ID)
}

func TestScanUsers_FilterThenMap(t *testing.T) {
	db := openTestDB(t)
	for _, u := range testutil.Users(newClock()) {
		require.NoError(t, db.WriteUser(u))
	}

	names, err := ScanUsers(db, 10,
		func(u *model.User) bool { return u.Status == model.StatusOnline },
		func(u model.User) string { return u.Username },
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "charlie"}, names)

	withPics, err := ScanUsers(db, 10,
		(*model.User).HasProfilePicture,
		func(u model.User) string { return u.ID },
	)
	require.NoError(t, err)
	assert.Equal(t, []string{testutil.AliceID, testutil.CharlieID}, withPics)

	bios, err := ScanUsers(db, 10, nil, func(u model.User) string { return u.Bio })
	require.NoError(t, err)
	assert.Equal(t, []string{"Test user 1", "Test user 2", "Test user 3"}, bios)
}

func TestScanPosts_FilterThenMap(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.WritePosts(testutil.Posts(newClock())))

	titles, err := ScanPosts(db, 10, (*model.Post).HasImage, func(p model.Post) string { return p.Title })
	require.NoError(t, err)
	assert.Equal(t, []string{"Second Post", "Third Post"}, titles)

	byAlice, err := ScanPosts(db, 10,
		func(p *model.Post) bool { return p.UserID == testutil.AliceID },
		func(p model.Post) string { return p.ID },
	)
	require.NoError(t, err)
	assert.Equal(t, []string{testutil.FirstPostID, testutil.ThirdPostID}, byAlice)

	type info struct {
		Title    string
		HasImage bool
	}
	infos, err := ScanPosts(db, recordlog.Unlimited, nil, func(p model.Post) info {
		return info{Title: p.Title, HasImage: p.HasImage()}
	})
	require.NoError(t, err)
	assert.Equal(t, []info{
		{"First Post", false},
		{"Second Post", true},
		{"Third Post", true},
	}, infos)
}

func TestScanTotems(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.WriteTotems(testutil.Totems(newClock())))

	names, err := ScanTotems(db, 1, nil, func(t model.Totem) string { return t.Name })
	require.NoError(t, err)
	assert.Equal(t, []string{"Totem One"}, names)
}

func TestWrite_ValidatesWholeBatchFirst(t *testing.T) {
	db := openTestDB(t)
	users := testutil.Users(newClock())
	users[2].Bio = strings.Repeat("b", model.MaxBioLen+1)

	err := db.WriteUsers(users)
	require.ErrorIs(t, err, model.ErrInvalidRecord)

	got, err := db.ReadUsers(recordlog.Unlimited)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWrite_NormalizesText(t *testing.T) {
	db := openTestDB(t)
	tot := testutil.Totems(newClock())[0]
	tot.Name = "Cafe\u0301"

	require.NoError(t, db.WriteTotem(tot))

	got, err := db.TotemByID(tot.ID)
	require.NoError(t, err)
	assert.Equal(t, "Caf\u00e9", got.Name)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, db.WriteUsers(testutil.Users(newClock())))
	require.NoError(t, db.Close())

	db, err = Open(dir, Options{RepairTornTail: true})
	require.NoError(t, err)
	defer db.Close()

	got, err := db.ReadUsers(recordlog.Unlimited)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	for _, name := range []string{UsersFile, PostsFile, TotemsFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		if name == UsersFile {
			assert.NoError(t, err)
		} else {
			assert.True(t, os.IsNotExist(err), name)
		}
	}
}

func TestTornUsersLogKeepsCompleteRecords(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, db.WriteUsers(testutil.Users(newClock())))
	require.NoError(t, db.Close())

	path := filepath.Join(dir, UsersFile)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-3))

	db, err = Open(dir, Options{})
	require.NoError(t, err)
	defer db.Close()

	names, err := ScanUsers(db, recordlog.Unlimited, nil, func(u model.User) string { return u.Username })
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)
}

func TestCorruptPayloadIsReported(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PostsFile), []byte{0x02, 0x00, 0x00, 0x00, 0xFF, 0xFF}, 0o644))

	db, err := Open(dir, Options{})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ReadPosts(10)
	assert.ErrorIs(t, err, recordlog.ErrMalformedPayload)
}

func TestLookups(t *testing.T) {
	db := openTestDB(t)
	clock := newClock()
	require.NoError(t, db.WriteUsers(testutil.Users(clock)))
	require.NoError(t, db.WriteTotems(testutil.Totems(clock)))
	require.NoError(t, db.WritePosts(testutil.Posts(clock)))

	u, err := db.UserByID(testutil.CharlieID)
	require.NoError(t, err)
	assert.Equal(t, "charlie", u.Username)

	p, err := db.PostByID(testutil.ThirdPostID)
	require.NoError(t, err)
	assert.Equal(t, testutil.TotemTwoID, p.SourceTotem)

	_, err = db.TotemByID("nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStats(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.WriteTotems(testutil.Totems(newClock())))

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats[TotemsFile].Frames)
	assert.Zero(t, stats[UsersFile].Frames)
	assert.Zero(t, stats[PostsFile].Bytes)
}

func TestRepository_Contract(t *testing.T) {
	testutil.RepositoryContract(t, func(t *testing.T) model.Repository {
		repo, err := OpenRepository(t.TempDir(), Options{})
		require.NoError(t, err)
		return repo
	})
}

func TestRepository_ConcurrentCallers(t *testing.T) {
	repo, err := OpenRepository(t.TempDir(), Options{})
	require.NoError(t, err)
	defer repo.Close()
	ctx := context.Background()

	done := make(chan error)
	for i := 0; i < 20; i++ {
		go func() {
			done <- repo.CreateTotem(ctx, model.Totem{
				ID:   model.NewID(),
				Name: "totem",
			})
		}()
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, <-done)
	}

	totems, err := repo.db.ReadTotems(recordlog.Unlimited)
	require.NoError(t, err)
	assert.Len(t, totems, 20)
}

func TestRepository_CloseTwice(t *testing.T) {
	repo, err := OpenRepository(t.TempDir(), Options{})
	require.NoError(t, err)

	require.NoError(t, repo.Close())
	assert.NoError(t, repo.Close())

	_, err = repo.UserByID(context.Background(), testutil.AliceID)
	assert.Error(t, err)
}

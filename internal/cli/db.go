package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/loomstore/internal/filedb"
	"github.com/roach88/loomstore/internal/model"
	"github.com/roach88/loomstore/internal/recordlog"
	"github.com/roach88/loomstore/internal/store"
)

// DBOptions holds flags for the db subcommands.
type DBOptions struct {
	*RootOptions
	Limit int

	// Filters
	Status   string
	UserID   string
	TotemID  string
	Location string
	Since    string
	Until    string
	HasImage bool
}

// UserList renders users one per line.
type UserList []model.User

// RenderText prints one user per line.
func (l UserList) RenderText(w io.Writer) {
	for _, u := range l {
		fmt.Fprintf(w, "%-36s  %-32s  %-8s  %s\n", u.ID, u.Username, u.Status, u.LastContact.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "%d user(s)\n", len(l))
}

// PostList renders posts one per line.
type PostList []model.Post

// RenderText prints one post per line.
func (l PostList) RenderText(w io.Writer) {
	for _, p := range l {
		fmt.Fprintf(w, "%-36s  %s  user=%s totem=%s  %q\n",
			p.ID, p.Timestamp.Format(time.RFC3339), p.UserID, p.SourceTotem, p.Title)
	}
	fmt.Fprintf(w, "%d post(s)\n", len(l))
}

// TotemList renders totems one per line.
type TotemList []model.Totem

// RenderText prints one totem per line.
func (l TotemList) RenderText(w io.Writer) {
	for _, t := range l {
		fmt.Fprintf(w, "%-36s  %-32s  %-24s  %s\n", t.ID, t.Name, t.Location, t.LastContact.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "%d totem(s)\n", len(l))
}

// PostRange is the result of a timestamp range query.
type PostRange struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
	IDs   []string  `json:"ids"`
}

// RenderText prints the matching ids in order.
func (r PostRange) RenderText(w io.Writer) {
	for _, id := range r.IDs {
		fmt.Fprintln(w, id)
	}
	fmt.Fprintf(w, "%d post(s) between %s and %s\n", len(r.IDs), r.Since.Format(time.RFC3339), r.Until.Format(time.RFC3339))
}

// NewDBCommand creates the db command group.
func NewDBCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Query and update the user, post and totem databases",
		Long: `Operate on the file-based database in record_log.dir: one record log
per entity (users.bin, posts.bin, totems.bin).

mirror copies its contents into the SQLite database at sqlite.path.`,
	}

	cmd.AddCommand(newDBUsersCommand(rootOpts))
	cmd.AddCommand(newDBPostsCommand(rootOpts))
	cmd.AddCommand(newDBTotemsCommand(rootOpts))
	cmd.AddCommand(newDBGetCommand(rootOpts))
	cmd.AddCommand(newDBRangeCommand(rootOpts))
	cmd.AddCommand(newDBAddUserCommand(rootOpts))
	cmd.AddCommand(newDBAddTotemCommand(rootOpts))
	cmd.AddCommand(newDBAddPostCommand(rootOpts))
	cmd.AddCommand(newDBMirrorCommand(rootOpts))

	return cmd
}

func addLimitFlag(cmd *cobra.Command, opts *DBOptions) {
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of records (0 = no limit)")
}

// scanLimit maps the --limit flag onto a scan limit.
func scanLimit(limit int) int {
	if limit <= 0 {
		return recordlog.Unlimited
	}
	return limit
}

func filedbOptions(e *env) filedb.Options {
	return filedb.Options{
		Durable:        e.cfg.RecordLog.Durable,
		MaxFrameSize:   e.cfg.RecordLog.MaxFrameSize,
		RepairTornTail: e.cfg.RecordLog.RepairTornTail,
		Logger:         &e.log,
		Metrics:        e.metrics,
	}
}

// withDB runs fn against the file database.
func withDB(opts *RootOptions, cmd *cobra.Command, fn func(e *env, db *filedb.DB) error) error {
	e, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	db, err := filedb.Open(e.cfg.RecordLogDir(), filedbOptions(e))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer db.Close()

	return fn(e, db)
}

// withRepository runs fn against the worker-backed repository.
func withRepository(opts *RootOptions, cmd *cobra.Command, fn func(e *env, repo model.Repository) error) error {
	e, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	repo, err := filedb.OpenRepository(e.cfg.RecordLogDir(), filedbOptions(e))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer repo.Close()

	return fn(e, repo)
}

func newDBUsersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users",
		Example: `  loomstore db users
  loomstore db users --status Online --limit 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(opts.RootOptions, cmd, func(e *env, db *filedb.DB) error {
				users, err := db.ReadUsersMatch(scanLimit(opts.Limit), func(u *model.User) bool {
					return opts.Status == "" || u.Status == opts.Status
				})
				if err != nil {
					return readFailure(e.out, err)
				}
				return e.out.Success(UserList(users))
			})
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "only users with this status")
	addLimitFlag(cmd, opts)

	return cmd
}

func newDBPostsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List posts",
		Example: `  loomstore db posts --user 0190c1a2-... --limit 5
  loomstore db posts --totem 0190c1a3-... --with-image`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(opts.RootOptions, cmd, func(e *env, db *filedb.DB) error {
				posts, err := db.ReadPostsMatch(scanLimit(opts.Limit), func(p *model.Post) bool {
					return (opts.UserID == "" || p.UserID == opts.UserID) &&
						(opts.TotemID == "" || p.SourceTotem == opts.TotemID) &&
						(!opts.HasImage || p.HasImage())
				})
				if err != nil {
					return readFailure(e.out, err)
				}
				return e.out.Success(PostList(posts))
			})
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "only posts by this user id")
	cmd.Flags().StringVar(&opts.TotemID, "totem", "", "only posts received through this totem id")
	cmd.Flags().BoolVar(&opts.HasImage, "with-image", false, "only posts with an image")
	addLimitFlag(cmd, opts)

	return cmd
}

func newDBTotemsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "totems",
		Short:         "List totems",
		Example:       `  loomstore db totems --location "Location A"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(opts.RootOptions, cmd, func(e *env, db *filedb.DB) error {
				totems, err := db.ReadTotemsMatch(scanLimit(opts.Limit), func(t *model.Totem) bool {
					return opts.Location == "" || t.Location == opts.Location
				})
				if err != nil {
					return readFailure(e.out, err)
				}
				return e.out.Success(TotemList(totems))
			})
		},
	}

	cmd.Flags().StringVar(&opts.Location, "location", "", "only totems at this location")
	addLimitFlag(cmd, opts)

	return cmd
}

func newDBGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <user|post|totem> <id>",
		Short: "Look up one record by id",
		Example: `  loomstore db get user 0190c1a2-...
  loomstore db get post 0190c1a4-... --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(rootOpts, cmd, func(e *env, repo model.Repository) error {
				rec, err := getRecord(cmd.Context(), repo, args[0], args[1])
				if err != nil {
					if errors.Is(err, model.ErrNotFound) {
						_ = e.out.Error(CodeNotFound, err.Error(), nil)
						return WrapExitError(ExitFailure, "record not found", err)
					}
					return readFailure(e.out, err)
				}
				return e.out.Success(rec)
			})
		},
	}
}

func getRecord(ctx context.Context, repo model.Repository, kind, id string) (any, error) {
	switch kind {
	case "user":
		u, err := repo.UserByID(ctx, id)
		return UserList{u}, err
	case "post":
		p, err := repo.PostByID(ctx, id)
		return PostList{p}, err
	case "totem":
		t, err := repo.TotemByID(ctx, id)
		return TotemList{t}, err
	default:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown record kind %q: must be user, post or totem", kind))
	}
}

func newDBRangeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "range",
		Short: "List post ids with a timestamp in [since, until]",
		Long: `List the ids of posts whose timestamp lies in the inclusive range
[--since, --until], ordered by timestamp then id.`,
		Example:       `  loomstore db range --since 2025-06-01T00:00:00Z --until 2025-06-02T00:00:00Z`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			since, err := parseTimeFlag("since", opts.Since)
			if err != nil {
				return err
			}
			until, err := parseTimeFlag("until", opts.Until)
			if err != nil {
				return err
			}

			return withRepository(opts.RootOptions, cmd, func(e *env, repo model.Repository) error {
				ids, err := repo.PostIDsInRange(cmd.Context(), since, until)
				if err != nil {
					return readFailure(e.out, err)
				}
				return e.out.Success(PostRange{Since: since, Until: until, IDs: ids})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Since, "since", "", "range start, RFC 3339 (required)")
	_ = cmd.MarkFlagRequired("since")
	cmd.Flags().StringVar(&opts.Until, "until", "", "range end, RFC 3339 (required)")
	_ = cmd.MarkFlagRequired("until")

	return cmd
}

// AddOptions holds flags for the add-* subcommands.
type AddOptions struct {
	*RootOptions
	ID string

	Username string
	Status   string
	Bio      string
	Picture  string

	Name     string
	Location string

	UserID    string
	TotemID   string
	Title     string
	Body      string
	Image     string
	Timestamp string
}

func newDBAddUserCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "add-user",
		Short:         "Append a user",
		Example:       `  loomstore db add-user --username alice --status Online --bio "hello"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			u := model.User{
				ID:             idOrNew(opts.ID),
				Username:       opts.Username,
				Status:         opts.Status,
				Bio:            opts.Bio,
				ProfilePicture: opts.Picture,
				LastContact:    time.Now().UTC(),
			}
			return withRepository(opts.RootOptions, cmd, func(e *env, repo model.Repository) error {
				if err := repo.CreateUser(cmd.Context(), u); err != nil {
					return writeFailure(e.out, err)
				}
				e.out.VerboseLog("created user %s", u.ID)
				return e.out.Success(UserList{u.Normalized()})
			})
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "record id (default: new UUIDv7)")
	cmd.Flags().StringVar(&opts.Username, "username", "", "username (required)")
	_ = cmd.MarkFlagRequired("username")
	cmd.Flags().StringVar(&opts.Status, "status", model.StatusOffline, "status")
	cmd.Flags().StringVar(&opts.Bio, "bio", "", "profile text")
	cmd.Flags().StringVar(&opts.Picture, "picture", "", "profile picture reference")

	return cmd
}

func newDBAddTotemCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "add-totem",
		Short:         "Append a totem",
		Example:       `  loomstore db add-totem --name "Totem One" --location "Location A"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := model.Totem{
				ID:          idOrNew(opts.ID),
				Name:        opts.Name,
				Location:    opts.Location,
				LastContact: time.Now().UTC(),
			}
			return withRepository(opts.RootOptions, cmd, func(e *env, repo model.Repository) error {
				if err := repo.CreateTotem(cmd.Context(), t); err != nil {
					return writeFailure(e.out, err)
				}
				e.out.VerboseLog("created totem %s", t.ID)
				return e.out.Success(TotemList{t.Normalized()})
			})
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "record id (default: new UUIDv7)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "totem name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&opts.Location, "location", "", "location label")

	return cmd
}

func newDBAddPostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add-post",
		Short: "Append a post",
		Long: `Append a post. The author (--user) and the totem it was received
through (--totem) must already exist.`,
		Example:       `  loomstore db add-post --user 0190c1a2-... --totem 0190c1a3-... --title hi --body "first post"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ts := time.Now().UTC()
			if opts.Timestamp != "" {
				var err error
				if ts, err = parseTimeFlag("timestamp", opts.Timestamp); err != nil {
					return err
				}
			}
			p := model.Post{
				ID:          idOrNew(opts.ID),
				UserID:      opts.UserID,
				Title:       opts.Title,
				Body:        opts.Body,
				Timestamp:   ts,
				Image:       opts.Image,
				SourceTotem: opts.TotemID,
			}
			return withRepository(opts.RootOptions, cmd, func(e *env, repo model.Repository) error {
				if err := repo.CreatePost(cmd.Context(), p); err != nil {
					return writeFailure(e.out, err)
				}
				e.out.VerboseLog("created post %s", p.ID)
				return e.out.Success(PostList{p.Normalized()})
			})
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "record id (default: new UUIDv7)")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "author user id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&opts.TotemID, "totem", "", "source totem id (required)")
	_ = cmd.MarkFlagRequired("totem")
	cmd.Flags().StringVar(&opts.Title, "title", "", "post title")
	cmd.Flags().StringVar(&opts.Body, "body", "", "post body")
	cmd.Flags().StringVar(&opts.Image, "image", "", "image reference")
	cmd.Flags().StringVar(&opts.Timestamp, "timestamp", "", "post time, RFC 3339 (default: now)")

	return cmd
}

// MirrorResult reports a mirror run.
type MirrorResult struct {
	SQLitePath string         `json:"sqlite_path"`
	Copied     map[string]int `json:"copied"`
	Skipped    map[string]int `json:"skipped"`
	Counts     map[string]int `json:"counts"`
}

// RenderText prints per-table totals.
func (r MirrorResult) RenderText(w io.Writer) {
	fmt.Fprintf(w, "mirrored into %s\n", r.SQLitePath)
	for _, table := range []string{"users", "totems", "posts"} {
		fmt.Fprintf(w, "  %-6s  copied %d  skipped %d  total %d\n",
			table, r.Copied[table], r.Skipped[table], r.Counts[table])
	}
}

// MirrorOptions holds flags for the mirror command.
type MirrorOptions struct {
	*RootOptions
	SQLitePath string
}

func newDBMirrorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MirrorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Copy the file database into SQLite",
		Long: `Copy every user, totem and post from the file database into the
SQLite database. Records already present (same id) are skipped, so mirror
can be run repeatedly.`,
		Example: `  loomstore db mirror
  loomstore db mirror --sqlite ./backup.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMirror(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.SQLitePath, "sqlite", "", "SQLite database path (default: sqlite.path)")

	return cmd
}

func runMirror(opts *MirrorOptions, cmd *cobra.Command) error {
	return withDB(opts.RootOptions, cmd, func(e *env, db *filedb.DB) error {
		path := opts.SQLitePath
		if path == "" {
			path = e.cfg.SQLitePath()
		}

		users, err := db.ReadUsers(recordlog.Unlimited)
		if err != nil {
			return readFailure(e.out, err)
		}
		totems, err := db.ReadTotems(recordlog.Unlimited)
		if err != nil {
			return readFailure(e.out, err)
		}
		posts, err := db.ReadPosts(recordlog.Unlimited)
		if err != nil {
			return readFailure(e.out, err)
		}

		st, err := store.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open SQLite database", err)
		}
		defer st.Close()

		ctx := cmd.Context()
		res := MirrorResult{
			SQLitePath: path,
			Copied:     map[string]int{},
			Skipped:    map[string]int{},
		}
		count := func(table string, err error) error {
			switch {
			case err == nil:
				res.Copied[table]++
			case errors.Is(err, model.ErrExists):
				res.Skipped[table]++
			default:
				return WrapExitError(ExitCommandError, "failed to mirror "+table, err)
			}
			return nil
		}

		// Parents first so post references resolve.
		for _, u := range users {
			if err := count("users", st.CreateUser(ctx, u)); err != nil {
				return err
			}
		}
		for _, t := range totems {
			if err := count("totems", st.CreateTotem(ctx, t)); err != nil {
				return err
			}
		}
		for _, p := range posts {
			if err := count("posts", st.CreatePost(ctx, p)); err != nil {
				return err
			}
		}

		if res.Counts, err = st.Counts(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to count rows", err)
		}
		e.log.Info().
			Str("sqlite", path).
			Interface("copied", res.Copied).
			Interface("skipped", res.Skipped).
			Msg("mirror complete")
		return e.out.Success(res)
	})
}

func idOrNew(id string) string {
	if id != "" {
		return id
	}
	return model.NewID()
}

func parseTimeFlag(name, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, WrapExitError(ExitCommandError, fmt.Sprintf("invalid --%s", name), err)
	}
	return t.UTC(), nil
}

// readFailure classifies a scan error.
func readFailure(out *OutputFormatter, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return logFailure(out, err)
}

// writeFailure reports a rejected record as a check failure.
func writeFailure(out *OutputFormatter, err error) error {
	var fieldErr *model.FieldError
	switch {
	case errors.As(err, &fieldErr):
		_ = out.Error(CodeInvalidRecord, err.Error(), fieldErr)
		return WrapExitError(ExitFailure, "invalid record", err)
	case errors.Is(err, model.ErrExists), errors.Is(err, model.ErrUnknownReference):
		_ = out.Error(CodeInvalidRecord, err.Error(), nil)
		return WrapExitError(ExitFailure, "record rejected", err)
	default:
		return WrapExitError(ExitCommandError, "failed to write record", err)
	}
}

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/loomstore/internal/recordlog"
)

// LogInspection summarizes one record log file.
type LogInspection struct {
	Path string `json:"path"`
	recordlog.Stats
}

// RenderText prints the frame statistics.
func (i LogInspection) RenderText(w io.Writer) {
	fmt.Fprintf(w, "%s\n", i.Path)
	fmt.Fprintf(w, "  frames:        %d\n", i.Frames)
	fmt.Fprintf(w, "  bytes:         %d\n", i.Bytes)
	fmt.Fprintf(w, "  payload bytes: %d\n", i.PayloadBytes)
	fmt.Fprintf(w, "  torn bytes:    %d\n", i.TornBytes)
}

// LogRepair reports the outcome of a repair.
type LogRepair struct {
	Path    string `json:"path"`
	Dropped int64  `json:"dropped"`
}

// RenderText prints what was truncated.
func (r LogRepair) RenderText(w io.Writer) {
	if r.Dropped == 0 {
		fmt.Fprintf(w, "%s: no torn tail\n", r.Path)
		return
	}
	fmt.Fprintf(w, "%s: dropped %d torn byte(s)\n", r.Path, r.Dropped)
}

// NewLogCommand creates the log command group.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect and repair record log files",
		Long: `Operate on a single record log: a file of frames, each a 4-byte
little-endian length followed by that many payload bytes.

An incomplete trailing frame (a torn tail) is ignored by readers and can be
truncated with repair. A length above record_log.max_frame_size is corruption
and is never repaired automatically.`,
	}

	cmd.AddCommand(newLogInspectCommand(rootOpts))
	cmd.AddCommand(newLogRepairCommand(rootOpts))

	return cmd
}

func newLogInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Count frames and detect a torn tail or corruption",
		Example: `  loomstore log inspect ./loomdata/records/posts.bin
  loomstore log inspect posts.bin --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogInspect(rootOpts, cmd, args[0])
		},
	}
}

func newLogRepairCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "repair <file>",
		Short:         "Truncate a torn trailing frame",
		Example:       `  loomstore log repair ./loomdata/records/posts.bin`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogRepair(rootOpts, cmd, args[0])
		},
	}
}

// openLog opens path without repairing it, so inspect reports what is on disk.
func openLog(e *env, path string) (*recordlog.Log, error) {
	l, err := recordlog.Open(path, recordlog.Options{
		Durable:      e.cfg.RecordLog.Durable,
		MaxFrameSize: e.cfg.RecordLog.MaxFrameSize,
		Logger:       &e.log,
		Metrics:      e.metrics,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open log", err)
	}
	return l, nil
}

func runLogInspect(opts *RootOptions, cmd *cobra.Command, path string) error {
	e, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	l, err := openLog(e, path)
	if err != nil {
		return err
	}
	defer l.Close()

	st, err := l.Stat()
	if err != nil {
		return logFailure(e.out, err)
	}

	return e.out.Success(LogInspection{Path: path, Stats: st})
}

func runLogRepair(opts *RootOptions, cmd *cobra.Command, path string) error {
	e, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	l, err := openLog(e, path)
	if err != nil {
		return err
	}
	defer l.Close()

	dropped, err := l.Recover()
	if err != nil {
		return logFailure(e.out, err)
	}

	return e.out.Success(LogRepair{Path: path, Dropped: dropped})
}

// logFailure reports a corrupt frame as a check failure and anything else as
// a command error.
func logFailure(out *OutputFormatter, err error) error {
	var frameErr *recordlog.FrameError
	if errors.As(err, &frameErr) {
		_ = out.Error(CodeCorruptLog, "log contains a corrupt frame", map[string]any{
			"offset": frameErr.Offset,
			"length": frameErr.Length,
			"reason": frameErr.Kind.Error(),
		})
		return WrapExitError(ExitFailure, "corrupt log", err)
	}
	return WrapExitError(ExitCommandError, "failed to read log", err)
}

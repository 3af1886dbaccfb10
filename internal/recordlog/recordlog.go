package recordlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/loomstore/internal/logger"
	"github.com/roach88/loomstore/internal/metrics"
)

const (
	// HeaderSize is the length prefix size: a little-endian uint32.
	HeaderSize = 4

	// DefaultMaxFrameSize bounds payload allocation when Options leave it unset.
	DefaultMaxFrameSize = 64 << 10

	// Unlimited asks Scan for every matching record.
	Unlimited = math.MaxInt

	fileMode = 0o644
)

var (
	// ErrFrameTooLarge is reported for a payload or length prefix above the
	// configured maximum frame size.
	ErrFrameTooLarge = errors.New("recordlog: frame too large")

	// ErrMalformedPayload is reported when a frame's payload cannot be decoded.
	ErrMalformedPayload = errors.New("recordlog: malformed payload")

	// ErrClosed is returned by operations on a closed log.
	ErrClosed = errors.New("recordlog: log closed")
)

// FrameError locates a frame that cannot be read or decoded. Kind is
// ErrFrameTooLarge or ErrMalformedPayload; Err is the underlying cause.
type FrameError struct {
	Path   string
	Offset int64
	Length uint32
	Kind   error
	Err    error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s at offset %d (length %d): %v", e.Kind, e.Path, e.Offset, e.Length, e.Err)
	}
	return fmt.Sprintf("%v: %s at offset %d (length %d)", e.Kind, e.Path, e.Offset, e.Length)
}

func (e *FrameError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IOError wraps a failure of the underlying file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("recordlog: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Options configure a Log.
type Options struct {
	// Durable syncs the file once at the end of every append batch.
	Durable bool

	// MaxFrameSize is the largest accepted payload. Zero means DefaultMaxFrameSize.
	MaxFrameSize int

	// RepairTornTail truncates an incomplete trailing frame when the log is opened.
	RepairTornTail bool

	// Tags are attached to every metric emitted by the log.
	Tags []string

	Logger  *zerolog.Logger
	Metrics *metrics.Recorder
}

// Log is an append-only sequence of length-prefixed frames in one file.
//
// A Log is not safe for concurrent use.
type Log struct {
	path     string
	opts     Options
	maxFrame int
	log      zerolog.Logger
	metrics  *metrics.Recorder

	file   *os.File // append handle, opened on first append
	end    int64    // file size after the last batch through file; -1 if unknown
	closed bool

	wrapWriter func(io.Writer) io.Writer // test hook around the append handle
}

// Open prepares a log at path. The file itself is created on first append.
func Open(path string, opts Options) (*Log, error) {
	maxFrame := opts.MaxFrameSize
	if maxFrame == 0 {
		maxFrame = DefaultMaxFrameSize
	}
	if maxFrame < 0 || uint64(maxFrame) > math.MaxUint32 {
		return nil, fmt.Errorf("recordlog: invalid max frame size %d", opts.MaxFrameSize)
	}

	l := &Log{
		path:     path,
		opts:     opts,
		maxFrame: maxFrame,
		log:      logger.Component(logger.OrNop(opts.Logger), "recordlog").With().Str("path", path).Logger(),
		metrics:  opts.Metrics,
	}

	if opts.RepairTornTail {
		if _, err := l.Recover(); err != nil {
			var frameErr *FrameError
			if !errors.As(err, &frameErr) {
				return nil, err
			}
			// Corruption is not a torn tail; leave the file alone and let
			// scans report it.
			l.log.Error().Err(err).Msg("log contains a corrupt frame")
		}
	}
	return l, nil
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Append writes one frame.
func (l *Log) Append(payload []byte) error {
	return l.AppendBatch([][]byte{payload})
}

// AppendBatch writes one frame per payload, in order, then flushes and (when
// durable) syncs once for the whole batch.
//
// Oversized payloads are rejected before anything is written. A failed batch
// is truncated away. A crash during the batch can leave a truncated final
// frame; readers treat it as the end of the log and the next append drops it.
func (l *Log) AppendBatch(payloads [][]byte) error {
	if l.closed {
		return ErrClosed
	}
	if len(payloads) == 0 {
		return nil
	}

	var total int64
	for i, p := range payloads {
		if len(p) > l.maxFrame {
			return fmt.Errorf("%w: payload %d is %d bytes (limit %d)", ErrFrameTooLarge, i, len(p), l.maxFrame)
		}
		total += int64(len(p))
	}

	start := time.Now()
	f, err := l.appendFile()
	if err != nil {
		return err
	}

	if err := l.writeFrames(f, payloads); err != nil {
		l.rollback(f)
		return err
	}
	l.end += total + int64(len(payloads)*HeaderSize)

	l.metrics.Count(metrics.LogAppendFrames, int64(len(payloads)), l.opts.Tags...)
	l.metrics.Count(metrics.LogAppendBytes, total+int64(len(payloads)*HeaderSize), l.opts.Tags...)
	l.metrics.Since(metrics.LogAppendLatency, start, l.opts.Tags...)
	return nil
}

func (l *Log) writeFrames(f *os.File, payloads [][]byte) error {
	var dst io.Writer = f
	if l.wrapWriter != nil {
		dst = l.wrapWriter(f)
	}

	w := bufio.NewWriter(dst)
	var header [HeaderSize]byte
	for _, p := range payloads {
		binary.LittleEndian.PutUint32(header[:], uint32(len(p)))
		if _, err := w.Write(header[:]); err != nil {
			return &IOError{Op: "append", Path: l.path, Err: err}
		}
		if _, err := w.Write(p); err != nil {
			return &IOError{Op: "append", Path: l.path, Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		return &IOError{Op: "flush", Path: l.path, Err: err}
	}
	if l.opts.Durable {
		if err := f.Sync(); err != nil {
			return &IOError{Op: "sync", Path: l.path, Err: err}
		}
	}
	return nil
}

// rollback drops whatever part of a failed batch reached the file. If that
// fails too, the next append re-validates the tail before writing.
func (l *Log) rollback(f *os.File) {
	err := f.Truncate(l.end)
	if err == nil {
		err = f.Sync()
	}
	if err != nil {
		l.log.Error().Err(err).Int64("offset", l.end).Msg("failed to roll back partial batch")
		l.end = -1
	}
}

// appendFile returns the append handle. Whenever the file size differs from
// the end of the last batch this handle wrote (always true on first use), the
// tail is re-validated and a torn frame truncated, so appends never land
// behind an incomplete frame.
func (l *Log) appendFile() (*os.File, error) {
	if l.file == nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
			return nil, &IOError{Op: "mkdir", Path: l.path, Err: err}
		}
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, fileMode)
		if err != nil {
			return nil, &IOError{Op: "open", Path: l.path, Err: err}
		}
		l.file = f
		l.end = -1
	}

	info, err := l.file.Stat()
	if err != nil {
		return nil, &IOError{Op: "stat", Path: l.path, Err: err}
	}
	if info.Size() == l.end {
		return l.file, nil
	}

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return nil, &IOError{Op: "seek", Path: l.path, Err: err}
	}
	st, err := l.validEnd(l.file)
	if err != nil {
		// A corrupt frame hides everything after it; refuse to bury more.
		return nil, err
	}
	if _, err := l.truncateTail(l.file, st); err != nil {
		return nil, err
	}
	l.end = st.Bytes
	return l.file, nil
}

// Each calls fn with the payload of every frame from the start of the file
// until fn returns false, fn fails, or the log ends. The payload slice is
// reused and only valid during the call.
func (l *Log) Each(fn func(payload []byte) (more bool, err error)) error {
	return l.eachFrame(func(_ int64, payload []byte) (bool, error) {
		return fn(payload)
	})
}

// eachFrame drives a sequential read of the whole file. A missing file is an
// empty log; a torn final frame ends the iteration without error.
func (l *Log) eachFrame(fn func(offset int64, payload []byte) (bool, error)) error {
	if l.closed {
		return ErrClosed
	}

	start := time.Now()
	frames := 0
	defer func() {
		l.metrics.Count(metrics.LogScanFrames, int64(frames), l.opts.Tags...)
		l.metrics.Since(metrics.LogScanLatency, start, l.opts.Tags...)
	}()

	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &IOError{Op: "open", Path: l.path, Err: err}
	}
	defer f.Close()

	fr, err := newFrameReader(f, l.path, l.maxFrame)
	if err != nil {
		return err
	}

	for {
		offset := fr.offset
		payload, err := fr.next()
		switch {
		case err == io.EOF:
			return nil
		case errors.Is(err, errTornTail):
			l.log.Warn().
				Int64("offset", offset).
				Int64("bytes", fr.size-offset).
				Msg("ignoring truncated trailing frame")
			l.metrics.Incr(metrics.LogTornTail, l.opts.Tags...)
			return nil
		case err != nil:
			return err
		}

		frames++
		more, err := fn(offset, payload)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// Scan decodes every frame in file order, keeps records for which keep
// returns true (nil keeps all), and returns mapFn of the kept records. It
// stops once limit results are collected or the log ends.
//
// keep sees the full decoded record; mapFn runs only on kept records, so the
// derived form of an excluded record is never built. A decode failure ends
// the scan with a *FrameError wrapping ErrMalformedPayload.
//
// limit <= 0 returns an empty result without reading the file.
func Scan[T, R any](l *Log, limit int, decode func([]byte) (T, error), keep func(*T) bool, mapFn func(T) R) ([]R, error) {
	results := []R{}
	if limit <= 0 {
		return results, nil
	}

	err := l.eachFrame(func(offset int64, payload []byte) (bool, error) {
		rec, err := decode(payload)
		if err != nil {
			return false, &FrameError{
				Path:   l.path,
				Offset: offset,
				Length: uint32(len(payload)),
				Kind:   ErrMalformedPayload,
				Err:    err,
			}
		}

		if keep != nil && !keep(&rec) {
			return true, nil
		}
		results = append(results, mapFn(rec))
		return len(results) < limit, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Collect is Scan with the identity mapping.
func Collect[T any](l *Log, limit int, decode func([]byte) (T, error), keep func(*T) bool) ([]T, error) {
	return Scan(l, limit, decode, keep, func(rec T) T { return rec })
}

// Stats summarizes the frames stored in a log.
type Stats struct {
	Frames       int   `json:"frames"`
	Bytes        int64 `json:"bytes"`
	PayloadBytes int64 `json:"payload_bytes"`
	TornBytes    int64 `json:"torn_bytes"`
}

// Stat walks the log and counts complete frames and torn trailing bytes.
func (l *Log) Stat() (Stats, error) {
	if l.closed {
		return Stats{}, ErrClosed
	}

	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, &IOError{Op: "open", Path: l.path, Err: err}
	}
	defer f.Close()

	return l.validEnd(f)
}

// Recover truncates a torn trailing frame so later appends stay aligned to
// frame boundaries. It returns the number of bytes dropped.
func (l *Log) Recover() (int64, error) {
	if l.closed {
		return 0, ErrClosed
	}

	f, err := os.OpenFile(l.path, os.O_RDWR, fileMode)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, &IOError{Op: "open", Path: l.path, Err: err}
	}
	defer f.Close()

	st, err := l.validEnd(f)
	if err != nil {
		return 0, err
	}
	return l.truncateTail(f, st)
}

// truncateTail cuts f back to st.Bytes when st reports a torn tail.
func (l *Log) truncateTail(f *os.File, st Stats) (int64, error) {
	if st.TornBytes == 0 {
		return 0, nil
	}

	if err := f.Truncate(st.Bytes); err != nil {
		return 0, &IOError{Op: "truncate", Path: l.path, Err: err}
	}
	if err := f.Sync(); err != nil {
		return 0, &IOError{Op: "sync", Path: l.path, Err: err}
	}

	l.log.Warn().
		Int64("offset", st.Bytes).
		Int64("dropped", st.TornBytes).
		Msg("truncated torn trailing frame")
	l.metrics.Incr(metrics.LogTornTail, l.opts.Tags...)
	return st.TornBytes, nil
}

// validEnd reads f frame by frame; Bytes is the end of the last complete frame.
func (l *Log) validEnd(f *os.File) (Stats, error) {
	fr, err := newFrameReader(f, l.path, l.maxFrame)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	for {
		payload, err := fr.next()
		switch {
		case err == io.EOF:
			st.Bytes = fr.offset
			return st, nil
		case errors.Is(err, errTornTail):
			st.Bytes = fr.offset
			st.TornBytes = fr.size - fr.offset
			return st, nil
		case err != nil:
			return Stats{}, err
		}
		st.Frames++
		st.PayloadBytes += int64(len(payload))
	}
}

// Close releases the append handle. The log cannot be used afterwards.
func (l *Log) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	if l.file == nil {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return &IOError{Op: "close", Path: l.path, Err: err}
	}
	return nil
}

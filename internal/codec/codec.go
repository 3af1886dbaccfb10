package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/loomstore/internal/model"
)

// ErrMalformed is wrapped by every decode failure.
var ErrMalformed = errors.New("codec: malformed payload")

// EncodeUser serializes u. Fields are written in declaration order.
func EncodeUser(u *model.User) []byte {
	var e encoder
	e.str(u.ID)
	e.str(u.Username)
	e.str(u.Status)
	e.str(u.Bio)
	e.str(u.ProfilePicture)
	e.time(u.LastContact)
	return e.buf
}

// DecodeUser parses a payload produced by EncodeUser. The result never
// aliases b.
func DecodeUser(b []byte) (model.User, error) {
	d := decoder{buf: b}
	u := model.User{
		ID:             d.str("id", model.MaxIDLen),
		Username:       d.str("username", model.MaxUsernameLen),
		Status:         d.str("status", model.MaxStatusLen),
		Bio:            d.str("bio", model.MaxBioLen),
		ProfilePicture: d.str("profile_picture", model.MaxPictureRefLen),
		LastContact:    d.time("last_contact"),
	}
	if err := d.finish("user"); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// EncodePost serializes p.
func EncodePost(p *model.Post) []byte {
	var e encoder
	e.str(p.ID)
	e.str(p.UserID)
	e.str(p.Title)
	e.str(p.Body)
	e.time(p.Timestamp)
	e.str(p.Image)
	e.str(p.SourceTotem)
	return e.buf
}

// DecodePost parses a payload produced by EncodePost.
func DecodePost(b []byte) (model.Post, error) {
	d := decoder{buf: b}
	p := model.Post{
		ID:          d.str("id", model.MaxIDLen),
		UserID:      d.str("user_id", model.MaxIDLen),
		Title:       d.str("title", model.MaxTitleLen),
		Body:        d.str("body", model.MaxBodyLen),
		Timestamp:   d.time("timestamp"),
		Image:       d.str("image", model.MaxImageRefLen),
		SourceTotem: d.str("source_totem", model.MaxIDLen),
	}
	if err := d.finish("post"); err != nil {
		return model.Post{}, err
	}
	return p, nil
}

// EncodeTotem serializes t.
func EncodeTotem(t *model.Totem) []byte {
	var e encoder
	e.str(t.ID)
	e.str(t.Name)
	e.str(t.Location)
	e.time(t.LastContact)
	return e.buf
}

// DecodeTotem parses a payload produced by EncodeTotem.
func DecodeTotem(b []byte) (model.Totem, error) {
	d := decoder{buf: b}
	t := model.Totem{
		ID:          d.str("id", model.MaxIDLen),
		Name:        d.str("name", model.MaxTotemNameLen),
		Location:    d.str("location", model.MaxLocationLen),
		LastContact: d.time("last_contact"),
	}
	if err := d.finish("totem"); err != nil {
		return model.Totem{}, err
	}
	return t, nil
}

type encoder struct {
	buf []byte
}

func (e *encoder) str(s string) {
	e.buf = binary.AppendUvarint(e.buf, uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// time stores whole seconds since the epoch and the nanosecond remainder.
// The location is not stored; decoded times are UTC.
func (e *encoder) time(t time.Time) {
	e.buf = binary.AppendVarint(e.buf, t.Unix())
	e.buf = binary.AppendUvarint(e.buf, uint64(t.Nanosecond()))
}

// decoder reads fields in order and latches the first error; later reads
// return zero values.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) fail(field, format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s at byte %d: %s", ErrMalformed, field, d.off, fmt.Sprintf(format, args...))
	}
}

func (d *decoder) uvarint(field string) uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf[d.off:])
	if n <= 0 {
		d.fail(field, "bad varint")
		return 0
	}
	d.off += n
	return v
}

func (d *decoder) varint(field string) int64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Varint(d.buf[d.off:])
	if n <= 0 {
		d.fail(field, "bad varint")
		return 0
	}
	d.off += n
	return v
}

func (d *decoder) str(field string, max int) string {
	n := d.uvarint(field)
	if d.err != nil {
		return ""
	}
	if n > uint64(max) {
		d.fail(field, "length %d exceeds limit of %d", n, max)
		return ""
	}
	if n > uint64(len(d.buf)-d.off) {
		d.fail(field, "length %d exceeds remaining %d bytes", n, len(d.buf)-d.off)
		return ""
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s
}

func (d *decoder) time(field string) time.Time {
	sec := d.varint(field)
	nsec := d.uvarint(field)
	if d.err != nil {
		return time.Time{}
	}
	if nsec >= uint64(time.Second) {
		d.fail(field, "nanoseconds %d out of range", nsec)
		return time.Time{}
	}
	return time.Unix(sec, int64(nsec)).UTC()
}

func (d *decoder) finish(entity string) error {
	if d.err != nil {
		return fmt.Errorf("decode %s: %w", entity, d.err)
	}
	if d.off != len(d.buf) {
		return fmt.Errorf("decode %s: %w: %d trailing bytes", entity, ErrMalformed, len(d.buf)-d.off)
	}
	return nil
}

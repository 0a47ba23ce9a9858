package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrProtocol is returned when the inbound stream cannot be decoded. It is
	// fatal for the stream, framing is lost.
	ErrProtocol = errors.New("protocol error")

	// ErrEmptyCommand is returned when encoding a command without any element.
	ErrEmptyCommand = errors.New("command must have at least one element")

	// ErrNotCommand is returned by ParseCommand for replies that are not an
	// array of bulk strings.
	ErrNotCommand = errors.New("request is not an array of bulk strings")

	errIncomplete = errors.New("incomplete frame")
)

// shrinkThreshold is the buffer capacity above which an emptied parse cursor
// releases its backing array.
const shrinkThreshold = 64 * 1024

// Decoder turns a RESP byte stream into replies.
//
// It owns the parse cursor, the unconsumed tail of the stream. A Decoder must
// not be used concurrently, one connection owns exactly one Decoder.
type Decoder struct {
	buf []byte

	// need is a lower bound on the buffered length required before the frame
	// at the front can be complete.
	need int

	err error
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Buffered returns the number of bytes held back as an incomplete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Err returns the error that stopped the decoder, if any.
func (d *Decoder) Err() error {
	return d.err
}

// Feed appends p to the parse cursor and returns every complete reply at the
// front of the buffered data, in stream order. Bytes of an incomplete trailing
// frame are kept for the next call; p itself is not retained.
//
// On a protocol error the replies decoded before the bad frame are returned
// along with an error wrapping ErrProtocol. The Decoder is unusable afterwards.
func (d *Decoder) Feed(p []byte) ([]Reply, error) {
	if d.err != nil {
		return nil, d.err
	}

	d.buf = append(d.buf, p...)
	if len(d.buf) < d.need {
		return nil, nil
	}

	var (
		replies []Reply
		pos     int
	)

	d.need = 0
	for pos < len(d.buf) {
		r, next, err := d.parse(pos)
		if err == errIncomplete {
			break
		}

		if err != nil {
			d.err = err
			d.buf = nil
			return replies, err
		}

		replies = append(replies, r)
		pos = next
	}

	d.consume(pos)

	return replies, nil
}

// Reset discards buffered data and clears a previous error.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.need = 0
	d.err = nil
}

func (d *Decoder) consume(n int) {
	if n == 0 {
		return
	}

	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]

	if rest == 0 && cap(d.buf) > shrinkThreshold {
		d.buf = nil
	}

	if d.need > 0 {
		d.need -= n
	}
}

// parse decodes the frame starting at pos and returns it with the position
// just after it.
func (d *Decoder) parse(pos int) (Reply, int, error) {
	if pos >= len(d.buf) {
		return Reply{}, pos, errIncomplete
	}

	tag := Type(d.buf[pos])
	switch tag {
	case TypeStatus, TypeError, TypeInteger, TypeBulkString, TypeArray:
	default:
		return Reply{}, pos, fmt.Errorf("%w: got %q as reply type byte", ErrProtocol, byte(tag))
	}

	line, next, err := d.readLine(pos + 1)
	if err != nil {
		return Reply{}, pos, err
	}

	switch tag {
	case TypeStatus, TypeError:
		return Reply{Type: tag, Str: clone(line)}, next, nil

	case TypeInteger:
		n, err := parseInt(line)
		if err != nil {
			return Reply{}, pos, fmt.Errorf("%w: bad integer value %q", ErrProtocol, line)
		}
		return Reply{Type: TypeInteger, Integer: n}, next, nil

	case TypeBulkString:
		n, err := parseInt(line)
		if err != nil || n < -1 {
			return Reply{}, pos, fmt.Errorf("%w: bad bulk string length %q", ErrProtocol, line)
		}

		if n == -1 {
			return Nil, next, nil
		}

		if n > int64(len(d.buf)-next-2) {
			if want := int64(next) + n + 2; want > int64(d.need) && want <= int64(maxInt) {
				d.need = int(want)
			}
			return Reply{}, pos, errIncomplete
		}

		end := next + int(n)
		if d.buf[end] != '\r' || d.buf[end+1] != '\n' {
			return Reply{}, pos, fmt.Errorf("%w: bulk string is not terminated by CRLF", ErrProtocol)
		}

		return Reply{Type: TypeBulkString, Str: clone(d.buf[next:end])}, end + 2, nil

	default:
		n, err := parseInt(line)
		if err != nil || n < -1 {
			return Reply{}, pos, fmt.Errorf("%w: bad multi-bulk length %q", ErrProtocol, line)
		}

		if n == -1 {
			return Nil, next, nil
		}

		// Every element takes at least 3 bytes, a hostile count must not
		// turn into a huge allocation up front.
		size := n
		if most := int64(len(d.buf)-next)/3 + 1; size > most {
			size = most
		}

		elems := make([]Reply, 0, size)
		for i := int64(0); i < n; i++ {
			var child Reply
			child, next, err = d.parse(next)
			if err != nil {
				return Reply{}, pos, err
			}
			elems = append(elems, child)
		}

		return Reply{Type: TypeArray, Elems: elems}, next, nil
	}
}

// readLine returns the line starting at pos without its CRLF, and the position
// of the next line.
func (d *Decoder) readLine(pos int) ([]byte, int, error) {
	if pos > len(d.buf) {
		return nil, pos, errIncomplete
	}

	i := bytes.Index(d.buf[pos:], Terminal)
	if i < 0 {
		return nil, pos, errIncomplete
	}

	return d.buf[pos : pos+i], pos + i + 2, nil
}

const maxInt = int(^uint(0) >> 1)

var errBadInteger = errors.New("bad integer")

// parseInt parses a base 10 ASCII integer with an optional sign. Leading
// zeros are accepted.
func parseInt(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, errBadInteger
	}

	var neg bool
	switch b[0] {
	case '-':
		neg = true
		b = b[1:]
	case '+':
		b = b[1:]
	}

	if len(b) == 0 {
		return 0, errBadInteger
	}

	var n uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, errBadInteger
		}

		if n > (1<<63)/10 {
			return 0, errBadInteger
		}

		n = n*10 + uint64(c-'0')
		if n > 1<<63 {
			return 0, errBadInteger
		}
	}

	if neg {
		return -int64(n), nil
	}

	if n > 1<<63-1 {
		return 0, errBadInteger
	}

	return int64(n), nil
}

func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

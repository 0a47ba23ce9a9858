package protocol

import (
	"io"
	"strconv"
)

var (
	Terminal = []byte("\r\n")

	nilBulkBytes = []byte("$-1\r\n")
)

// AppendCommand appends the multi bulk encoding of args to dst.
//
// A command needs at least one element, its name, otherwise ErrEmptyCommand
// is returned and dst is left untouched.
func AppendCommand(dst []byte, args [][]byte) ([]byte, error) {
	if len(args) == 0 {
		return dst, ErrEmptyCommand
	}

	dst = appendHeader(dst, TypeArray, int64(len(args)))
	for _, arg := range args {
		dst = appendBulk(dst, arg)
	}

	return dst, nil
}

// EncodeCommand returns the wire encoding of args.
func EncodeCommand(args [][]byte) ([]byte, error) {
	size := 16
	for _, arg := range args {
		size += len(arg) + 16
	}
	return AppendCommand(make([]byte, 0, size), args)
}

// WriteCommand encodes args and writes them to w in a single Write call.
func WriteCommand(w io.Writer, args ...[]byte) error {
	b, err := EncodeCommand(args)
	if err != nil {
		return err
	}

	_, err = w.Write(b)
	return err
}

// AppendReply appends the wire encoding of r to dst. This is what a server
// sends, it is used by fakes and by the request/response round trip tests.
func AppendReply(dst []byte, r Reply) []byte {
	switch r.Type {
	case TypeNil:
		return append(dst, nilBulkBytes...)

	case TypeStatus, TypeError:
		dst = append(dst, byte(r.Type))
		dst = append(dst, r.Str...)
		return append(dst, Terminal...)

	case TypeInteger:
		return appendHeader(dst, TypeInteger, r.Integer)

	case TypeBulkString:
		return appendBulk(dst, r.Str)

	case TypeArray:
		dst = appendHeader(dst, TypeArray, int64(len(r.Elems)))
		for _, e := range r.Elems {
			dst = AppendReply(dst, e)
		}
		return dst
	}

	return dst
}

// WriteReply writes the wire encoding of r to w.
func WriteReply(w io.Writer, r Reply) error {
	_, err := w.Write(AppendReply(nil, r))
	return err
}

func appendHeader(dst []byte, t Type, n int64) []byte {
	dst = append(dst, byte(t))
	dst = strconv.AppendInt(dst, n, 10)
	return append(dst, Terminal...)
}

func appendBulk(dst []byte, b []byte) []byte {
	dst = appendHeader(dst, TypeBulkString, int64(len(b)))
	dst = append(dst, b...)
	return append(dst, Terminal...)
}

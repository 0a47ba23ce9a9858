package protocol

import (
	"fmt"
	"strings"
)

// Type is the type of a decoded reply. Apart from TypeNil the values are the
// single byte prefixes used on the wire.
type Type byte

const (
	// TypeNil is a nil bulk string or a nil array.
	TypeNil        Type = 0
	TypeStatus     Type = '+'
	TypeError      Type = '-'
	TypeInteger    Type = ':'
	TypeBulkString Type = '$'
	TypeArray      Type = '*'
)

var _ fmt.Stringer = TypeNil

func (t Type) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeStatus:
		return "status"
	case TypeError:
		return "error"
	case TypeInteger:
		return "integer"
	case TypeBulkString:
		return "bulk"
	case TypeArray:
		return "array"
	default:
		return fmt.Sprintf("unknown(%q)", byte(t))
	}
}

// Reply is a decoded RESP value.
//
// Str holds the payload of status, error and bulk string replies, Integer the
// value of integer replies and Elems the children of an array.
type Reply struct {
	Type    Type
	Integer int64
	Str     []byte
	Elems   []Reply
}

// Nil is the nil reply.
var Nil = Reply{Type: TypeNil}

func Status(s string) Reply {
	return Reply{Type: TypeStatus, Str: []byte(s)}
}

func Integer(n int64) Reply {
	return Reply{Type: TypeInteger, Integer: n}
}

func Bulk(b []byte) Reply {
	if b == nil {
		return Nil
	}
	return Reply{Type: TypeBulkString, Str: b}
}

func BulkString(s string) Reply {
	return Reply{Type: TypeBulkString, Str: []byte(s)}
}

func Array(elems ...Reply) Reply {
	if elems == nil {
		elems = []Reply{}
	}
	return Reply{Type: TypeArray, Elems: elems}
}

func ErrorReply(msg string) Reply {
	return Reply{Type: TypeError, Str: []byte(msg)}
}

// IsNil returns true for nil bulk strings and nil arrays.
func (r Reply) IsNil() bool {
	return r.Type == TypeNil
}

// Bytes returns the payload of a status, error or bulk string reply.
func (r Reply) Bytes() []byte {
	return r.Str
}

// String returns the payload of a status, error or bulk string reply, or the
// decimal form of an integer reply.
func (r Reply) String() string {
	switch r.Type {
	case TypeInteger:
		return fmt.Sprintf("%d", r.Integer)
	case TypeArray:
		parts := make([]string, len(r.Elems))
		for i, e := range r.Elems {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, " ") + "]"
	case TypeNil:
		return "<nil>"
	default:
		return string(r.Str)
	}
}

// Value converts the reply into plain Go values: nil, int64, string or
// []interface{} for arrays. Error replies become a *ReplyError.
func (r Reply) Value() interface{} {
	switch r.Type {
	case TypeInteger:
		return r.Integer
	case TypeStatus, TypeBulkString:
		return string(r.Str)
	case TypeError:
		return r.Err()
	case TypeArray:
		vals := make([]interface{}, len(r.Elems))
		for i, e := range r.Elems {
			vals[i] = e.Value()
		}
		return vals
	default:
		return nil
	}
}

// Err returns a *ReplyError for error replies, nil otherwise.
func (r Reply) Err() error {
	if r.Type != TypeError {
		return nil
	}
	return &ReplyError{Message: string(r.Str)}
}

// ReplyError is an error reply sent by the server, e.g. a syntax error or a
// WRONGTYPE operation. It is an ordinary outcome of a command, the connection
// remains usable.
type ReplyError struct {
	Message string
}

func (e *ReplyError) Error() string {
	return e.Message
}

// Prefix returns the leading error code, e.g. ERR or WRONGTYPE.
func (e *ReplyError) Prefix() string {
	if i := strings.IndexByte(e.Message, ' '); i >= 0 {
		return e.Message[:i]
	}
	return e.Message
}

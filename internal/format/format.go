// Package format renders decoded replies for people and for JSON consumers.
package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/luma/redisfast/protocol"
)

// Pretty renders r the way redis-cli does on a terminal.
func Pretty(r protocol.Reply) string {
	var b strings.Builder
	writePretty(&b, r, 0)
	return strings.TrimSuffix(b.String(), "\n")
}

func writePretty(b *strings.Builder, r protocol.Reply, indent int) {
	switch r.Type {
	case protocol.TypeNil:
		b.WriteString("(nil)\n")

	case protocol.TypeInteger:
		fmt.Fprintf(b, "(integer) %d\n", r.Integer)

	case protocol.TypeError:
		fmt.Fprintf(b, "(error) %s\n", r.Str)

	case protocol.TypeStatus:
		b.Write(r.Str)
		b.WriteByte('\n')

	case protocol.TypeBulkString:
		b.WriteString(Quote(r.Str))
		b.WriteByte('\n')

	case protocol.TypeArray:
		if len(r.Elems) == 0 {
			b.WriteString("(empty array)\n")
			return
		}

		width := len(strconv.Itoa(len(r.Elems)))
		for i, e := range r.Elems {
			if i > 0 {
				b.WriteString(strings.Repeat(" ", indent))
			}

			prefix := fmt.Sprintf("%*d) ", width, i+1)
			b.WriteString(prefix)
			writePretty(b, e, indent+len(prefix))
		}
	}
}

// Quote double quotes b, escaping quotes, backslashes and non printable
// bytes as \xHH.
func Quote(b []byte) string {
	var s strings.Builder
	s.Grow(len(b) + 2)

	s.WriteByte('"')
	for _, c := range b {
		switch c {
		case '\\', '"':
			s.WriteByte('\\')
			s.WriteByte(c)
		case '\n':
			s.WriteString(`\n`)
		case '\r':
			s.WriteString(`\r`)
		case '\t':
			s.WriteString(`\t`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(&s, `\x%02x`, c)
			} else {
				s.WriteByte(c)
			}
		}
	}
	s.WriteByte('"')

	return s.String()
}

// Raw renders r without decoration, one line per value, like redis-cli does
// when its output is not a terminal.
func Raw(r protocol.Reply) string {
	var b strings.Builder
	writeRaw(&b, r)
	return strings.TrimSuffix(b.String(), "\n")
}

func writeRaw(b *strings.Builder, r protocol.Reply) {
	switch r.Type {
	case protocol.TypeNil:
		b.WriteByte('\n')

	case protocol.TypeInteger:
		b.WriteString(strconv.FormatInt(r.Integer, 10))
		b.WriteByte('\n')

	case protocol.TypeArray:
		for _, e := range r.Elems {
			writeRaw(b, e)
		}

	default:
		b.Write(r.Str)
		b.WriteByte('\n')
	}
}

// JSON wraps r in an object, {"reply": value} or {"error": message} for error
// replies. Nil becomes null, integers numbers, strings strings and arrays
// arrays.
func JSON(r protocol.Reply) ([]byte, error) {
	if r.Type == protocol.TypeError {
		return sjson.SetBytes([]byte(`{}`), "error", string(r.Str))
	}

	raw, err := jsonValue(r)
	if err != nil {
		return nil, err
	}

	return sjson.SetRawBytes([]byte(`{}`), "reply", raw)
}

func jsonValue(r protocol.Reply) ([]byte, error) {
	switch r.Type {
	case protocol.TypeNil:
		return []byte("null"), nil

	case protocol.TypeInteger:
		return strconv.AppendInt(nil, r.Integer, 10), nil

	case protocol.TypeArray:
		out := []byte(`[]`)
		for _, e := range r.Elems {
			raw, err := jsonValue(e)
			if err != nil {
				return nil, err
			}

			if out, err = sjson.SetRawBytes(out, "-1", raw); err != nil {
				return nil, err
			}
		}
		return out, nil

	case protocol.TypeError:
		return sjson.SetBytes([]byte(`{}`), "error", string(r.Str))

	default:
		// Let sjson do the string escaping, then lift the value out
		obj, err := sjson.SetBytes([]byte(`{}`), "v", string(r.Str))
		if err != nil {
			return nil, err
		}
		return []byte(gjson.GetBytes(obj, "v").Raw), nil
	}
}

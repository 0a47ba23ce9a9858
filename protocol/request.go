package protocol

import (
	"fmt"
	"strconv"
)

// ParseCommand converts a decoded request, an array of bulk strings, back into
// the arguments it was encoded from. It is the server side counterpart of
// EncodeCommand.
func ParseCommand(r Reply) ([][]byte, error) {
	if r.Type != TypeArray || len(r.Elems) == 0 {
		return nil, ErrNotCommand
	}

	args := make([][]byte, len(r.Elems))
	for i, e := range r.Elems {
		if e.Type != TypeBulkString {
			return nil, fmt.Errorf("argument %d is a %s: %w", i, e.Type, ErrNotCommand)
		}
		args[i] = e.Str
	}

	return args, nil
}

// Args converts values into command arguments. Strings and byte slices are
// used as is, numbers and booleans are formatted in base 10 and anything else
// goes through fmt.Sprint.
func Args(values ...interface{}) [][]byte {
	args := make([][]byte, len(values))

	for i, v := range values {
		switch v := v.(type) {
		case []byte:
			args[i] = v
		case string:
			args[i] = []byte(v)
		case int:
			args[i] = strconv.AppendInt(nil, int64(v), 10)
		case int32:
			args[i] = strconv.AppendInt(nil, int64(v), 10)
		case int64:
			args[i] = strconv.AppendInt(nil, v, 10)
		case uint:
			args[i] = strconv.AppendUint(nil, uint64(v), 10)
		case uint32:
			args[i] = strconv.AppendUint(nil, uint64(v), 10)
		case uint64:
			args[i] = strconv.AppendUint(nil, v, 10)
		case float32:
			args[i] = strconv.AppendFloat(nil, float64(v), 'g', -1, 32)
		case float64:
			args[i] = strconv.AppendFloat(nil, v, 'g', -1, 64)
		case bool:
			if v {
				args[i] = []byte("1")
			} else {
				args[i] = []byte("0")
			}
		case nil:
			args[i] = []byte{}
		case fmt.Stringer:
			args[i] = []byte(v.String())
		default:
			args[i] = []byte(fmt.Sprint(v))
		}
	}

	return args
}

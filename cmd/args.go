package cmd

import (
	"errors"
	"strconv"
	"strings"
)

var errUnbalancedQuotes = errors.New("unbalanced quotes in request")

// splitArgs splits a line typed at the prompt into arguments the way
// redis-cli does. Double quoted arguments understand \n, \r, \t, \b, \a,
// \\, \" and \xHH escapes, single quoted ones only \'. A closing quote must
// be followed by a space or the end of the line.
func splitArgs(line string) ([]string, error) {
	var (
		args []string
		i    int
	)

	for {
		for i < len(line) && isSpace(line[i]) {
			i++
		}

		if i >= len(line) {
			return args, nil
		}

		var (
			current strings.Builder
			inDQ    bool
			inSQ    bool
			done    bool
		)

		for !done {
			if i >= len(line) {
				if inDQ || inSQ {
					return nil, errUnbalancedQuotes
				}
				break
			}

			c := line[i]

			switch {
			case inDQ:
				switch {
				case c == '\\' && i+3 < len(line) && line[i+1] == 'x' && isHex(line[i+2]) && isHex(line[i+3]):
					n, _ := strconv.ParseUint(line[i+2:i+4], 16, 8)
					current.WriteByte(byte(n))
					i += 3

				case c == '\\' && i+1 < len(line):
					i++
					current.WriteByte(unescape(line[i]))

				case c == '"':
					if i+1 < len(line) && !isSpace(line[i+1]) {
						return nil, errUnbalancedQuotes
					}
					done = true

				default:
					current.WriteByte(c)
				}

			case inSQ:
				switch {
				case c == '\\' && i+1 < len(line) && line[i+1] == '\'':
					i++
					current.WriteByte('\'')

				case c == '\'':
					if i+1 < len(line) && !isSpace(line[i+1]) {
						return nil, errUnbalancedQuotes
					}
					done = true

				default:
					current.WriteByte(c)
				}

			default:
				switch {
				case isSpace(c):
					done = true
				case c == '"':
					inDQ = true
				case c == '\'':
					inSQ = true
				default:
					current.WriteByte(c)
				}
			}

			i++
		}

		args = append(args, current.String())
	}
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'a':
		return '\a'
	default:
		return c
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

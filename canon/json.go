package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"
)

// TimestampLayout is the canonical UTC microsecond timestamp format used
// throughout the ledger: 2006-01-02T15:04:05.000000Z.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// JSON renders v as deterministic, UTF-8, sorted-key, compact-separator
// JSON. It never HTML-escapes and never inserts whitespace.
func JSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the lowercase hex SHA-256 digest of JSON(v).
func Hash(v Value) (string, error) {
	encoded, err := JSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

var hexHashPattern = regexp.MustCompile(`^(?:[a-f0-9]{32}|[a-f0-9]{64})$`)

// IsHexHash reports whether s is a lowercase hex MD5- or SHA-256-length
// digest, the shape every audited_state_hash must have.
func IsHexHash(s string) bool {
	return hexHashPattern.MatchString(s)
}

func writeValue(buf *bytes.Buffer, v Value) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case Null:
		buf.WriteString("null")
	case Bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case Float:
		writeFloat(buf, float64(x))
	case String:
		writeJSONString(buf, string(x))
	case Timestamp:
		writeJSONString(buf, time.Time(x).UTC().Format(TimestampLayout))
	case List:
		buf.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Map:
		buf.WriteByte('{')
		first := true
		var err error
		x.Range(func(key string, val Value) {
			if err != nil {
				return
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			writeJSONString(buf, key)
			buf.WriteByte(':')
			err = writeValue(buf, val)
		})
		if err != nil {
			return err
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("%w: unrenderable canon.Value %T", ErrInvalidValue, v)
	}
	return nil
}

// writeFloat renders f per the decimal round-trip rule: shortest
// representation that reparses to the same float64, JSON-legal exponent
// form, -0 folded to 0.
func writeFloat(buf *bytes.Buffer, f float64) {
	if f == 0 {
		buf.WriteString("0")
		return
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	buf.WriteString(s)
}

func writeJSONString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteString(s[i : i+size])
			}
		}
		i += size
	}
	buf.WriteByte('"')
}

// FormatTimestamp renders t in the canonical layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a canonical timestamp string back to a time.Time.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

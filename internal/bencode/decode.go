package bencode

import (
	"fmt"
	"strconv"
)

// Decode parses a single bencode value from b. It fails with ErrMalformed
// if the input does not contain exactly one complete value: trailing
// bytes after the value are rejected, as are truncated strings, missing
// terminators and unknown leading tokens. Decode is tolerant of
// dictionaries whose keys are not in sorted order, per the corpus's
// interoperability convention; Encode always re-sorts on the way out.
func Decode(b []byte) (Value, error) {
	v, rest, err := decodeValue(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing bytes", ErrMalformed)
	}
	return v, nil
}

func decodeValue(b []byte) (Value, []byte, error) {
	if len(b) == 0 {
		return nil, nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	switch {
	case b[0] == 'i':
		return decodeInt(b)
	case b[0] == 'l':
		return decodeList(b)
	case b[0] == 'd':
		return decodeDict(b)
	case b[0] >= '0' && b[0] <= '9':
		return decodeBytes(b)
	default:
		return nil, nil, fmt.Errorf("%w: unknown token %q", ErrMalformed, b[0])
	}
}

func decodeInt(b []byte) (Value, []byte, error) {
	end := indexByte(b, 'e')
	if end < 0 {
		return nil, nil, fmt.Errorf("%w: unterminated integer", ErrMalformed)
	}
	digits := b[1:end]
	if len(digits) == 0 {
		return nil, nil, fmt.Errorf("%w: empty integer", ErrMalformed)
	}
	n, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: bad integer %q: %s", ErrMalformed, digits, err)
	}
	return Int(n), b[end+1:], nil
}

func decodeBytes(b []byte) (Value, []byte, error) {
	colon := indexByte(b, ':')
	if colon < 0 {
		return nil, nil, fmt.Errorf("%w: missing length separator", ErrMalformed)
	}
	lengthDigits := b[:colon]
	length, err := strconv.ParseInt(string(lengthDigits), 10, 64)
	if err != nil || length < 0 {
		return nil, nil, fmt.Errorf("%w: bad string length %q", ErrMalformed, lengthDigits)
	}
	start := colon + 1
	end := start + int(length)
	if end < start || end > len(b) {
		return nil, nil, fmt.Errorf("%w: declared string length %d exceeds buffer", ErrMalformed, length)
	}
	out := make([]byte, length)
	copy(out, b[start:end])
	return Bytes(out), b[end:], nil
}

func decodeList(b []byte) (Value, []byte, error) {
	rest := b[1:]
	var list List
	for {
		if len(rest) == 0 {
			return nil, nil, fmt.Errorf("%w: unterminated list", ErrMalformed)
		}
		if rest[0] == 'e' {
			return list, rest[1:], nil
		}
		elem, next, err := decodeValue(rest)
		if err != nil {
			return nil, nil, err
		}
		list = append(list, elem)
		rest = next
	}
}

func decodeDict(b []byte) (Value, []byte, error) {
	rest := b[1:]
	dict := Dict{}
	for {
		if len(rest) == 0 {
			return nil, nil, fmt.Errorf("%w: unterminated dict", ErrMalformed)
		}
		if rest[0] == 'e' {
			return dict, rest[1:], nil
		}
		keyVal, next, err := decodeValue(rest)
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyVal.(Bytes)
		if !ok {
			return nil, nil, fmt.Errorf("%w: dict key is not a byte string", ErrMalformed)
		}
		val, next2, err := decodeValue(next)
		if err != nil {
			return nil, nil, err
		}
		dict[string(key)] = val
		rest = next2
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

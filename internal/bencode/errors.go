package bencode

import "errors"

// ErrMalformed is returned by Decode for any structurally invalid input:
// a missing terminator, a declared string length exceeding the buffer, an
// unknown leading token, a non-byte-string dictionary key, or trailing
// bytes after a complete value.
var ErrMalformed = errors.New("bencode: malformed input")

// ErrUnsupportedType is returned by Encode when asked to encode a Value
// implementation outside Int/Bytes/List/Dict.
var ErrUnsupportedType = errors.New("bencode: unsupported value type")

package bencode

import (
	"fmt"
	"strconv"
)

// Encode serialises v into its canonical bencode form: dictionary keys in
// strictly ascending byte order and integers in minimal decimal form.
func Encode(v Value) ([]byte, error) {
	var buf []byte
	var err error
	buf, err = appendValue(buf, v)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func appendValue(buf []byte, v Value) ([]byte, error) {
	switch t := v.(type) {
	case Int:
		buf = append(buf, 'i')
		buf = strconv.AppendInt(buf, int64(t), 10)
		buf = append(buf, 'e')
		return buf, nil
	case Bytes:
		buf = strconv.AppendInt(buf, int64(len(t)), 10)
		buf = append(buf, ':')
		buf = append(buf, t...)
		return buf, nil
	case List:
		buf = append(buf, 'l')
		var err error
		for _, elem := range t {
			buf, err = appendValue(buf, elem)
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, 'e')
		return buf, nil
	case Dict:
		buf = append(buf, 'd')
		var err error
		for _, key := range t.sortedKeys() {
			buf, err = appendValue(buf, Bytes(key))
			if err != nil {
				return nil, err
			}
			buf, err = appendValue(buf, t[key])
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, 'e')
		return buf, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

// Package bencode implements the bencode grammar used by metainfo files
// and tracker responses: integers, byte strings, lists and dictionaries.
package bencode

import "sort"

// Value is the bencode grammar's tagged union: every decoded node is one
// of Int, Bytes, List or Dict. Go has no sum type, so the union is closed
// over an unexported marker method instead.
type Value interface {
	bencodeValue()
}

// Int is a signed bencode integer (i<decimal>e).
type Int int64

func (Int) bencodeValue() {}

// Bytes is a bencode byte string (<len>:<raw>).
type Bytes []byte

func (Bytes) bencodeValue() {}

// List is an ordered sequence of values (l...e).
type List []Value

func (List) bencodeValue() {}

// Dict is a dictionary keyed by byte strings (d...e). Keys are stored as
// Go strings rather than []byte because map keys must be comparable;
// this is the one adaptation from the spec's Vec<u8> key type.
type Dict map[string]Value

func (Dict) bencodeValue() {}

// sortedKeys returns d's keys in the strict ascending byte order the
// encoder must emit.
func (d Dict) sortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

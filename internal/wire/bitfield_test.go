package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitfieldHasBitOrder(t *testing.T) {
	bf := Bitfield{0b01010100, 0b01010100}
	want := []bool{
		false, true, false, true, false, true, false, false,
		false, true, false, true, false, true, false, false,
		false, false, false, false,
	}
	for i, w := range want {
		assert.Equalf(t, w, bf.Has(i), "index %d", i)
	}
}

func TestBitfieldSetThenHas(t *testing.T) {
	bf := make(Bitfield, 2)
	bf.Set(3)
	bf.Set(15)
	assert.True(t, bf.Has(3))
	assert.True(t, bf.Has(15))
	assert.False(t, bf.Has(4))
}

func TestBitfieldOutOfRangeTolerant(t *testing.T) {
	bf := make(Bitfield, 1)
	assert.False(t, bf.Has(100))
	assert.NotPanics(t, func() { bf.Set(100) })
}

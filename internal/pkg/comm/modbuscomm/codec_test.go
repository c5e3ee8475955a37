package modbuscomm

import (
	"math"
	"math/rand"
	"testing"

	"gotest.tools/v3/assert"
)

func TestEncode(t *testing.T) {
	for _, tc := range []struct {
		datatype DataType
		endian   Endian
		want     []byte
	}{
		{u16, bigEndian, []byte{4, 210}},
		{u16, littleEndian, []byte{210, 4}},
		{u32, bigEndian, []byte{0, 0, 4, 210}},
		{u32, littleEndian, []byte{210, 4, 0, 0}},
		{u64, bigEndian, []byte{0, 0, 0, 0, 0, 0, 4, 210}},
		{u64, littleEndian, []byte{210, 4, 0, 0, 0, 0, 0, 0}},
		{i16, bigEndian, []byte{4, 210}},
		{f32, bigEndian, []byte{68, 154, 64, 0}},
	} {
		reg := Register{Name: "test", DataType: tc.datatype, FunctionCode: 3, AccessType: ro, Endianness: tc.endian}
		assert.DeepEqual(t, encode(1234, reg), tc.want)
	}
}

func TestDecodeUnsigned(t *testing.T) {
	rand.Seed(10)
	for _, tc := range []struct {
		datatype DataType
		max      float64
	}{
		{u16, 65535},
		{u32, 4294967295},
		{u64, 9223372036854775807},
	} {
		for _, endian := range []Endian{bigEndian, littleEndian} {
			reg := Register{Name: "test", DataType: tc.datatype, AccessType: ro, Endianness: endian}
			want := rand.Float64() * tc.max
			got := decode(encode(want, reg), reg)
			assert.Equal(t, got, math.Floor(want), "%s %s", tc.datatype, endian)
		}
	}
}

func TestDecodeSigned(t *testing.T) {
	for _, datatype := range []DataType{i16, i32, i64} {
		for _, endian := range []Endian{bigEndian, littleEndian} {
			reg := Register{Name: "test", DataType: datatype, AccessType: ro, Endianness: endian}
			assert.Equal(t, decode(encode(-1234, reg), reg), -1234.0, "%s %s", datatype, endian)
		}
	}
}

func TestDecodeFloat(t *testing.T) {
	for _, endian := range []Endian{bigEndian, littleEndian} {
		reg := Register{Name: "test", DataType: f32, AccessType: ro, Endianness: endian}
		assert.Equal(t, decode(encode(0.5, reg), reg), 0.5)

		reg.DataType = f64
		assert.Equal(t, decode(encode(math.Pi, reg), reg), math.Pi)
	}
}

func TestSizeOf(t *testing.T) {
	assert.Equal(t, sizeOf(u16), uint16(1))
	assert.Equal(t, sizeOf(f32), uint16(2))
	assert.Equal(t, sizeOf(i64), uint16(4))
	assert.Equal(t, sizeOf("u8"), uint16(0))
}

func TestFilterRegisters(t *testing.T) {
	regs := []Register{
		{Name: "a", AccessType: ro},
		{Name: "b", AccessType: wo},
		{Name: "c", AccessType: rw},
	}
	read := FilterRegisters(regs, ro)
	assert.Equal(t, len(read), 2)
	assert.Equal(t, read[1].Name, "c")

	write := FilterRegisters(regs, wo)
	assert.Equal(t, len(write), 2)
	assert.Equal(t, write[0].Name, "b")
}

// Package modbuscomm polls measurements and forecasts from Modbus TCP devices
// into network inputs and writes solved setpoints back.
package modbuscomm

// ModbusComm interface
type ModbusComm interface {
	Read([]Register) (map[string]float64, error)
	Write([]Register, map[string]float64) error
}

// DataType defines the type of Modbus register for encoding/decoding
type DataType string

// Constants of DataType
const (
	u16 DataType = "u16"
	u32 DataType = "u32"
	u64 DataType = "u64"
	i16 DataType = "i16"
	i32 DataType = "i32"
	i64 DataType = "i64"
	f32 DataType = "f32"
	f64 DataType = "f64"
)

// Access devices the register read/write type
type Access string

// Constants of Access
const (
	ro Access = "read-only"
	wo Access = "write-only"
	rw Access = "read-write"
)

// Endian byte order of Modbus register for encoding/decoding
type Endian string

// Constants of Endian
const (
	littleEndian Endian = "little"
	bigEndian    Endian = "big"
)

// Register contains the data required to read and write a Modbus register.
// A readable register feeds input Owner.Param with raw*Scale + Offset. A
// writable register receives the first period of output Owner.Param, written
// as (value - Offset) / Scale.
type Register struct {
	Name         string   `json:"Name" mapstructure:"name"`
	Address      uint16   `json:"Address" mapstructure:"address"`
	DataType     DataType `json:"DataType" mapstructure:"datatype"`
	FunctionCode int      `json:"FunctionCode" mapstructure:"functioncode"`
	AccessType   Access   `json:"Access" mapstructure:"access"`
	Endianness   Endian   `json:"Endianness" mapstructure:"endianness"`
	Owner        string   `json:"Owner" mapstructure:"owner"`
	Param        string   `json:"Param" mapstructure:"param"`
	Scale        float64  `json:"Scale" mapstructure:"scale"`
	Offset       float64  `json:"Offset" mapstructure:"offset"`
}

func (r Register) scale() float64 {
	if r.Scale == 0 {
		return 1
	}
	return r.Scale
}

// FilterRegisters returns registers from array with matching access type
func FilterRegisters(r []Register, a Access) []Register {
	filtered := make([]Register, 0)
	for _, reg := range r {
		if reg.AccessType == a || reg.AccessType == rw {
			filtered = append(filtered, reg)
		}
	}
	return filtered
}

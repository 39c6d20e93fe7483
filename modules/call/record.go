package call

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// RecordSize is the size in bytes of a marshaled Call.
//
//	offset size field
//	0      4    function type
//	4      50   function name, NUL terminated
//	54     1    argument1 uint8
//	55     1    argument2 uint8
//	56     4    argument2 uint32
//	60     8    argument2 int64 (fixed point double)
//	68     1    return value int8
const RecordSize = 4 + FunctionNameSize + 1 + 1 + 4 + 8 + 1

// record mirrors the wire layout, encoding/binary packs it without padding.
type record struct {
	FunctionType    uint32
	FunctionName    [FunctionNameSize]byte
	Argument1Uint8  uint8
	Argument2Uint8  uint8
	Argument2Uint32 uint32
	Argument2Int64  int64
	ReturnValue     int8
}

var byteOrder = binary.LittleEndian

// MarshalBinary encodes the call into a RecordSize long record.
func (c Call) MarshalBinary() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	r := record{
		FunctionType:    uint32(c.FunctionType),
		Argument1Uint8:  c.Argument1Uint8,
		Argument2Uint8:  c.Argument2Uint8,
		Argument2Uint32: c.Argument2Uint32,
		Argument2Int64:  c.Argument2Int64,
		ReturnValue:     c.ReturnValue,
	}
	copy(r.FunctionName[:], c.FunctionName)

	buf := bytes.NewBuffer(make([]byte, 0, RecordSize))
	if err := binary.Write(buf, byteOrder, &r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (c *Call) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("call record: got %d bytes, want %d", len(data), RecordSize)
	}

	var r record
	if err := binary.Read(bytes.NewReader(data), byteOrder, &r); err != nil {
		return err
	}

	name := r.FunctionName[:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	} else {
		return fmt.Errorf("call record: function name is not NUL terminated")
	}

	*c = Call{
		FunctionType:    FunctionType(r.FunctionType),
		FunctionName:    string(name),
		Argument1Uint8:  r.Argument1Uint8,
		Argument2Uint8:  r.Argument2Uint8,
		Argument2Uint32: r.Argument2Uint32,
		Argument2Int64:  r.Argument2Int64,
		ReturnValue:     r.ReturnValue,
	}
	return nil
}

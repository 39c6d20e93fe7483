// Package call defines the single request descriptor exchanged between the
// privileged daemon and the helper process, and its fixed wire layout.
package call

import (
	"bytes"
	"errors"
	"fmt"
	"math"
)

// FunctionType selects the argument/return shape of a vendor entry point.
type FunctionType uint32

const (
	// int8 f(uint8 channel, uint32 *out)
	Uint8Uint32Pointer FunctionType = iota
	// int8 f(uint8 channel, double *out), the double travels as fixed point
	Uint8DoublePointer
	// int8 f(uint8 channel, uint8 value)
	Uint8Uint8
)

func (t FunctionType) String() string {
	switch t {
	case Uint8Uint32Pointer:
		return "int8(uint8, *uint32)"
	case Uint8DoublePointer:
		return "int8(uint8, *double)"
	case Uint8Uint8:
		return "int8(uint8, uint8)"
	default:
		return fmt.Sprintf("FunctionType(%d)", uint32(t))
	}
}

const (
	// FunctionNameSize is the size of the NUL terminated name buffer.
	FunctionNameSize = 50

	// Sentinels written by the constructors; a library that never writes the
	// output slot, or a helper that never submits, leaves them untouched.
	UnsetUint32 uint32 = math.MaxUint32
	UnsetInt64  int64  = math.MinInt64
	NoReturn    int8   = math.MinInt8
)

var ErrNameTooLong = errors.New("function name too long")

// Call is one logical function call. The zero value is not a valid call,
// use one of the constructors.
type Call struct {
	FunctionType    FunctionType
	FunctionName    string
	Argument1Uint8  uint8
	Argument2Uint8  uint8
	Argument2Uint32 uint32
	Argument2Int64  int64
	ReturnValue     int8
}

// NewUint32Out builds a call to `int8 name(uint8 channel, uint32 *out)`.
func NewUint32Out(name string, channel uint8) Call {
	return Call{
		FunctionType:    Uint8Uint32Pointer,
		FunctionName:    name,
		Argument1Uint8:  channel,
		Argument2Uint32: UnsetUint32,
		Argument2Int64:  UnsetInt64,
		ReturnValue:     NoReturn,
	}
}

// NewDoubleOut builds a call to `int8 name(uint8 channel, double *out)`.
func NewDoubleOut(name string, channel uint8) Call {
	return Call{
		FunctionType:    Uint8DoublePointer,
		FunctionName:    name,
		Argument1Uint8:  channel,
		Argument2Uint32: UnsetUint32,
		Argument2Int64:  UnsetInt64,
		ReturnValue:     NoReturn,
	}
}

// NewUint8 builds a call to `int8 name(uint8 channel, uint8 value)`.
func NewUint8(name string, channel, value uint8) Call {
	return Call{
		FunctionType:    Uint8Uint8,
		FunctionName:    name,
		Argument1Uint8:  channel,
		Argument2Uint8:  value,
		Argument2Uint32: UnsetUint32,
		Argument2Int64:  UnsetInt64,
		ReturnValue:     NoReturn,
	}
}

// Returned reports whether the helper wrote a return value.
func (c Call) Returned() bool {
	return c.ReturnValue != NoReturn
}

// OutputWritten reports whether the output slot of the call shape was
// written. Shapes without an output slot always report true.
func (c Call) OutputWritten() bool {
	switch c.FunctionType {
	case Uint8Uint32Pointer:
		return c.Argument2Uint32 != UnsetUint32
	case Uint8DoublePointer:
		return c.Argument2Int64 != UnsetInt64
	default:
		return true
	}
}

// Validate checks the name length, nothing else is known before resolution.
func (c Call) Validate() error {
	if len(c.FunctionName) >= FunctionNameSize {
		return fmt.Errorf("%w: %q (%d bytes, max %d)", ErrNameTooLong,
			c.FunctionName, len(c.FunctionName), FunctionNameSize-1)
	}
	if i := bytes.IndexByte([]byte(c.FunctionName), 0); i >= 0 {
		return fmt.Errorf("function name %q contains a NUL byte", c.FunctionName)
	}
	return nil
}

func (c Call) String() string {
	return fmt.Sprintf("%s %s(%d)", c.FunctionType, c.FunctionName, c.Argument1Uint8)
}

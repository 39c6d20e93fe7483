package hal

import (
	"errors"
	"fmt"
	"math"

	"github.com/oblq/qnapec/modules/call"
)

// ErrInvalidValue is returned when the library writes a double that can
// not be carried as fixed point.
var ErrInvalidValue = errors.New("value not representable as fixed point")

// Proxy dispatches calls to a Library according to their function type.
type Proxy struct {
	library Library
}

func NewProxy(library Library) *Proxy {
	return &Proxy{library: library}
}

// Invoke resolves c.FunctionName, calls it with the convention selected by
// c.FunctionType and returns c updated with the output slot and return
// value. An error means no result is available.
func (p *Proxy) Invoke(c call.Call) (call.Call, error) {
	if err := c.Validate(); err != nil {
		return c, err
	}

	switch c.FunctionType {
	case call.Uint8Uint32Pointer:
		ret, out, err := p.library.CallUint8Uint32Pointer(c.FunctionName, c.Argument1Uint8)
		if err != nil {
			return c, err
		}
		c.Argument2Uint32 = out
		c.ReturnValue = ret

	case call.Uint8DoublePointer:
		ret, out, err := p.library.CallUint8DoublePointer(c.FunctionName, c.Argument1Uint8)
		if err != nil {
			return c, err
		}
		switch {
		case math.IsNaN(out):
			// not written by the library, the slot keeps its sentinel
		case math.IsInf(out, 0), math.Abs(out) >= float64(math.MaxInt64)/call.FixedPointScale:
			return c, fmt.Errorf("%w: %s(%d) = %v", ErrInvalidValue, c.FunctionName, c.Argument1Uint8, out)
		default:
			c.Argument2Int64 = call.ToFixed(out)
		}
		c.ReturnValue = ret

	case call.Uint8Uint8:
		ret, err := p.library.CallUint8Uint8(c.FunctionName, c.Argument1Uint8, c.Argument2Uint8)
		if err != nil {
			return c, err
		}
		c.ReturnValue = ret

	default:
		return c, fmt.Errorf("%w: %d", ErrUnknownFunctionType, uint32(c.FunctionType))
	}

	// a NoReturn coming from the library itself would read as "never
	// called" on the other side
	if c.ReturnValue == call.NoReturn {
		c.ReturnValue = call.NoReturn + 1
	}
	return c, nil
}

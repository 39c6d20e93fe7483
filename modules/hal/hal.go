// Package hal resolves and invokes vendor library entry points by name.
//
// The vendor library exports a handful of undocumented functions whose
// signatures were recovered empirically. Library narrows them down to the
// three calling conventions the daemon needs, so nothing outside this
// package deals with symbol resolution or C pointers.
package hal

import "errors"

var (
	// ErrSymbolNotFound is returned when the library does not export the
	// requested entry point. No call happened.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrLibraryLoad is returned when the library itself can not be loaded.
	ErrLibraryLoad = errors.New("unable to load library")

	// ErrUnknownFunctionType is returned for a call shape the proxy does
	// not implement.
	ErrUnknownFunctionType = errors.New("unknown function type")
)

// Simulated is the library path that selects the built-in simulation.
const Simulated = "simulated"

// Library is a loaded vendor library, one method per calling convention.
// An output the library did not write is reported as call.UnsetUint32 for
// integers and NaN for doubles.
type Library interface {
	// int8 name(uint8 a, uint32 *out)
	CallUint8Uint32Pointer(name string, a uint8) (ret int8, out uint32, err error)

	// int8 name(uint8 a, double *out)
	CallUint8DoublePointer(name string, a uint8) (ret int8, out float64, err error)

	// int8 name(uint8 a, uint8 b)
	CallUint8Uint8(name string, a, b uint8) (ret int8, err error)

	Close() error
}

// Open loads the library at path, Simulated selects NewSimulatedLibrary.
func Open(path string) (Library, error) {
	if path == Simulated {
		return NewSimulatedLibrary(), nil
	}
	return openDynamic(path)
}

//go:build darwin || linux

package hal

import (
	"fmt"
	"math"
	"sync"

	"github.com/ebitengine/purego"

	"github.com/oblq/qnapec/modules/call"
)

type (
	uint8Uint32PointerFunc func(uint8, *uint32) int8
	uint8DoublePointerFunc func(uint8, *float64) int8
	uint8Uint8Func         func(uint8, uint8) int8
)

// dynamicLibrary is a shared object opened with dlopen. Symbols are looked
// up on first use and bound to the calling convention they were called with.
type dynamicLibrary struct {
	path   string
	handle uintptr

	mutex sync.Mutex
	bound map[string]any
}

func openDynamic(path string) (Library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrLibraryLoad, path, err)
	}
	return &dynamicLibrary{
		path:   path,
		handle: handle,
		bound:  make(map[string]any),
	}, nil
}

func (l *dynamicLibrary) symbol(name string) (uintptr, error) {
	sym, err := purego.Dlsym(l.handle, name)
	if err != nil || sym == 0 {
		return 0, fmt.Errorf("%w: %s in %s", ErrSymbolNotFound, name, l.path)
	}
	return sym, nil
}

// bind resolves name and binds it to the func type F. A name already bound
// with another shape is rebound.
func bind[F any](l *dynamicLibrary, name string) (F, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if fn, ok := l.bound[name].(F); ok {
		return fn, nil
	}

	var fn F
	sym, err := l.symbol(name)
	if err != nil {
		return fn, err
	}
	purego.RegisterFunc(&fn, sym)
	l.bound[name] = fn
	return fn, nil
}

func (l *dynamicLibrary) CallUint8Uint32Pointer(name string, a uint8) (int8, uint32, error) {
	fn, err := bind[uint8Uint32PointerFunc](l, name)
	if err != nil {
		return 0, 0, err
	}
	// sentinels tell an untouched output apart from a written one
	out := call.UnsetUint32
	ret := fn(a, &out)
	return ret, out, nil
}

func (l *dynamicLibrary) CallUint8DoublePointer(name string, a uint8) (int8, float64, error) {
	fn, err := bind[uint8DoublePointerFunc](l, name)
	if err != nil {
		return 0, 0, err
	}
	out := math.NaN()
	ret := fn(a, &out)
	return ret, out, nil
}

func (l *dynamicLibrary) CallUint8Uint8(name string, a, b uint8) (int8, error) {
	fn, err := bind[uint8Uint8Func](l, name)
	if err != nil {
		return 0, err
	}
	return fn(a, b), nil
}

func (l *dynamicLibrary) Close() error {
	return purego.Dlclose(l.handle)
}

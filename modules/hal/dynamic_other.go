//go:build !(darwin || linux)

package hal

import "fmt"

func openDynamic(path string) (Library, error) {
	return nil, fmt.Errorf("%w %s: dlopen is not supported on this platform", ErrLibraryLoad, path)
}

// Package reflector derives stable type names used to tag events on the wire.
package reflector

import (
	"reflect"
	"sync"
)

var (
	mu    sync.RWMutex
	cache = make(map[reflect.Type]string)
)

// TypeNameOf returns the short "pkg.Type" name for x, dereferencing
// pointers. Results are cached per reflect.Type.
func TypeNameOf(x any) string {
	t := reflect.TypeOf(x)
	if t == nil {
		return ""
	}

	mu.RLock()
	name, ok := cache[t]
	mu.RUnlock()
	if ok {
		return name
	}

	e := t
	if e.Kind() == reflect.Pointer {
		e = e.Elem()
	}
	name = e.String()

	mu.Lock()
	cache[t] = name
	mu.Unlock()
	return name
}

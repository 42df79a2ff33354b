package utils

import (
	"log"
	"runtime/debug"
)

func ToPointer[T any](v T) *T {
	return &v
}

// Deref returns the pointed value or def when p is nil.
func Deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// GoSafe runs fn in a goroutine and recovers from panics so a single bad task
// cannot take the worker down.
func GoSafe(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("recovered from panic: %v\n%s", r, debug.Stack())
			}
		}()
		fn()
	}()
}

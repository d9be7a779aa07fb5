// Package stdx has small generic helpers missing from the standard library.
package stdx

// Must returns v and panics when err is set. It is meant for package level
// values built from constant input.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// Package utils provides shared helpers used across the indexer: error
// wrapping and environment-variable lookups with typed defaults.
package utils

import "fmt"

// Wrap adds context to an error message. It returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapIf wraps err with message only when cond is true; otherwise it
// returns err unchanged. Useful for conditionally annotating an error with
// the operation that was in flight (e.g. which batch, which height) without
// an extra if-block at every call site.
func WrapIf(cond bool, err error, message string) error {
	if !cond {
		return err
	}
	return Wrap(err, message)
}

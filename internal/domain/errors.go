package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks a missing or invalid pipeline parameter. Callers fail fast.
	ErrConfig = errors.New("config error")

	// ErrLoad marks a missing or malformed input file. It aborts the current run only.
	ErrLoad = errors.New("load error")
)

// LoadError reports an input file that could not be read or parsed.
// errors.Is(err, ErrLoad) holds for every LoadError.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is makes every LoadError match ErrLoad.
func (e *LoadError) Is(target error) bool { return target == ErrLoad }

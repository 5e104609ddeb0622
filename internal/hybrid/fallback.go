package hybrid

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
	SourceLocal  Source = "local"
)

// ErrSkipped marks a step that did not apply (offline, cache miss, entity
// not configured remote). It moves on to the next step without being logged.
var ErrSkipped = errors.New("step skipped")

func skip(reason string) error {
	return fmt.Errorf("%w: %s", ErrSkipped, reason)
}

// Step is one source in a fallback chain. Stop reports whether an error ends
// the chain instead of falling through; nil means every error falls through.
type Step[T any] struct {
	Source Source
	Run    func(ctx context.Context) (T, error)
	Stop   func(err error) bool
}

// Result is the value of the first step that succeeded, the source it came
// from and the combined errors of the steps tried before it.
type Result[T any] struct {
	Value   T
	Source  Source
	Skipped error
}

// First runs steps in order and returns the first success. When every step
// fails the combined error is returned.
func First[T any](ctx context.Context, steps ...Step[T]) (Result[T], error) {
	var skipped error
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return Result[T]{Skipped: skipped}, err
		}
		value, err := step.Run(ctx)
		if err == nil {
			return Result[T]{Value: value, Source: step.Source, Skipped: skipped}, nil
		}
		if step.Stop != nil && step.Stop(err) {
			return Result[T]{Source: step.Source, Skipped: skipped}, err
		}
		skipped = multierr.Append(skipped, fmt.Errorf("%s: %w", step.Source, err))
	}
	if skipped == nil {
		skipped = errors.New("no fallback steps")
	}
	return Result[T]{Skipped: skipped}, skipped
}

// Unexpected filters out ErrSkipped entries, leaving the failures worth
// logging.
func Unexpected(err error) error {
	var out error
	for _, e := range multierr.Errors(err) {
		if !errors.Is(e, ErrSkipped) {
			out = multierr.Append(out, e)
		}
	}
	return out
}

// Package param implements change-detecting parameter containers. A Tracked
// parameter remembers which builders read it and invalidates them when a later
// Set carries a different value.
package param

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_opt/internal/pkg/errs"
)

// Dependent is anything that must be rebuilt when a parameter it reads changes.
type Dependent interface {
	Invalidate()
}

// Source is the type-erased view of a tracked parameter used for dependency
// registration.
type Source interface {
	ID() uuid.UUID
	Name() string
	IsSet() bool
	Register(Dependent)
}

// Loader is a Source that accepts untyped values from documents and messages.
type Loader interface {
	Source
	Assign(interface{}) error
	Stage(interface{}) (func(), error)
}

// Option configures a Tracked parameter.
type Option[T any] func(*Tracked[T])

// WithCheck attaches a validator that Read applies to the current value.
func WithCheck[T any](check func(T) error) Option[T] {
	return func(p *Tracked[T]) {
		p.check = check
	}
}

// Tracked holds a scalar or per-period value of T.
type Tracked[T any] struct {
	id         uuid.UUID
	name       string
	value      T
	set        bool
	dependents []Dependent
	check      func(T) error
}

// New returns an unset parameter.
func New[T any](name string, opts ...Option[T]) *Tracked[T] {
	p := &Tracked[T]{
		id:   uuid.New(),
		name: name,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Of returns a parameter already set to v. The initial set is silent.
func Of[T any](name string, v T, opts ...Option[T]) *Tracked[T] {
	p := New(name, opts...)
	p.Set(v)
	return p
}

// ID is a getter for the parameter id
func (p *Tracked[T]) ID() uuid.UUID {
	return p.id
}

// Name is a getter for the parameter name
func (p *Tracked[T]) Name() string {
	return p.name
}

// IsSet reports whether Set has been called at least once.
func (p *Tracked[T]) IsSet() bool {
	return p.set
}

// Register adds d to the dependents of p. Registering the same dependent twice
// has no effect, so every dependent is invalidated once per change.
func (p *Tracked[T]) Register(d Dependent) {
	for _, existing := range p.dependents {
		if existing == d {
			return
		}
	}
	p.dependents = append(p.dependents, d)
}

// Dependents returns the number of registered dependents.
func (p *Tracked[T]) Dependents() int {
	return len(p.dependents)
}

// Set stores v. Dependents are invalidated only when p was already set and v
// differs from the stored value.
func (p *Tracked[T]) Set(v T) {
	v = clone(v)
	if !p.set {
		p.value = v
		p.set = true
		return
	}
	if equal(p.value, v) {
		return
	}
	p.value = v
	for _, d := range p.dependents {
		d.Invalidate()
	}
}

// Get returns the stored value, or errs.ErrUnset if p was never set.
func (p *Tracked[T]) Get() (T, error) {
	if !p.set {
		var zero T
		return zero, fmt.Errorf("%w: parameter %q", errs.ErrUnset, p.name)
	}
	return p.value, nil
}

// Read is Get followed by the validator, if any.
func (p *Tracked[T]) Read() (T, error) {
	v, err := p.Get()
	if err != nil {
		return v, err
	}
	if p.check != nil {
		if err := p.check(v); err != nil {
			return v, fmt.Errorf("parameter %q: %w", p.name, err)
		}
	}
	return v, nil
}

// Assign converts v to T and sets it. Values of the wrong kind fail with errs.ErrType.
func (p *Tracked[T]) Assign(v interface{}) error {
	set, err := p.Stage(v)
	if err != nil {
		return err
	}
	set()
	return nil
}

// Stage converts v to T without touching p. The returned func sets it.
func (p *Tracked[T]) Stage(v interface{}) (func(), error) {
	typed, err := convert[T](v)
	if err != nil {
		return nil, fmt.Errorf("parameter %q: %w", p.name, err)
	}
	typed = clone(typed)
	return func() { p.Set(typed) }, nil
}

func clone[T any](v T) T {
	if s, ok := any(v).([]float64); ok {
		return any(append([]float64(nil), s...)).(T)
	}
	return v
}

// equal compares a and b; a comparison that panics counts as "differs".
func equal[T any](a, b T) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	switch av := any(a).(type) {
	case float64:
		return av == any(b).(float64)
	case []float64:
		bv := any(b).([]float64)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case bool:
		return av == any(b).(bool)
	case string:
		return av == any(b).(string)
	}
	if reflect.TypeOf(a).Comparable() {
		return any(a) == any(b)
	}
	return reflect.DeepEqual(a, b)
}

func convert[T any](v interface{}) (T, error) {
	var zero T
	if typed, ok := v.(T); ok {
		return typed, nil
	}
	switch any(zero).(type) {
	case float64:
		f, ok := toFloat(v)
		if !ok {
			return zero, errs.Type("want a number, got %T", v)
		}
		return any(f).(T), nil
	case []float64:
		seq, ok := toSequence(v)
		if !ok {
			return zero, errs.Type("want a number or a sequence of numbers, got %T", v)
		}
		return any(seq).(T), nil
	}
	return zero, errs.Type("want %T, got %T", zero, v)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toSequence(v interface{}) ([]float64, bool) {
	if f, ok := toFloat(v); ok {
		return []float64{f}, true
	}
	switch s := v.(type) {
	case []float64:
		return s, true
	case []int:
		seq := make([]float64, len(s))
		for i, n := range s {
			seq[i] = float64(n)
		}
		return seq, true
	case []interface{}:
		seq := make([]float64, len(s))
		for i, item := range s {
			f, ok := toFloat(item)
			if !ok {
				return nil, false
			}
			seq[i] = f
		}
		return seq, true
	}
	return nil, false
}

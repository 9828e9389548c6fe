package factory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// ErrUnknownModule indicates a configured type name with no registered
// constructor, usually a typo in the "type" field.
var ErrUnknownModule = errors.New("factory: unknown module type")

// ErrDuplicateModule indicates a second registration under a taken name.
// Registrations happen in init functions, so this is a programming error,
// not a configuration one.
var ErrDuplicateModule = errors.New("factory: module already registered")

// ModuleConfig selects a module implementation by type name and carries its
// raw options. Solver backends and metrics sinks are both configured this
// way.
type ModuleConfig struct {
	Type string         `json:"type"`
	Conf map[string]any `json:"conf"`
}

// Factory builds an implementation of T from raw options.
type Factory[T any] func(map[string]any) (T, error)

// Registry maps type names to factories. One registry exists per extension
// point.
type Registry[T any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// NewRegistry returns an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{factories: make(map[string]Factory[T])}
}

// Register adds a factory under the given type name. A nil factory and a
// name that is already taken are both rejected.
func (r *Registry[T]) Register(name string, f Factory[T]) error {
	if f == nil {
		return fmt.Errorf("factory: nil constructor for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateModule, name)
	}
	r.factories[name] = f
	return nil
}

// Create instantiates the module named by cfg.Type with cfg.Conf as its raw
// options.
func (r *Registry[T]) Create(cfg ModuleConfig) (T, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %q", ErrUnknownModule, cfg.Type)
	}
	return f(cfg.Conf)
}

// Decode maps raw options onto a module's own config struct, matching by
// json tag so config files and option maps share one vocabulary.
func Decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: out})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}

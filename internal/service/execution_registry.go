package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrFunctionNotFound = errors.New("function not found")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Function es una operación ejecutable por nombre. args y kwargs llegan desde JSON.
type Function func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// Registry mapea nombres a funciones registradas al arranque.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Function
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Function)}
}

// NewDefaultRegistry devuelve un registry con las funciones incluidas.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("example_function", exampleFunction)
	_ = r.Register("random_code", randomCodeFunction)
	return r
}

func (r *Registry) Register(name string, fn Function) error {
	if name == "" || fn == nil {
		return errors.New("register: name and function are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[name]; ok {
		return fmt.Errorf("register: %s already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

func (r *Registry) Execute(ctx context.Context, name string, args []any, kwargs map[string]any) (any, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return fn(ctx, args, kwargs)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// stringArg toma el argumento de la posición pos o de kwargs[name].
func stringArg(args []any, kwargs map[string]any, pos int, name string, def string) (string, error) {
	var v any
	switch {
	case pos < len(args):
		v = args[pos]
	case kwargs[name] != nil:
		v = kwargs[name]
	default:
		if def == "" {
			return "", fmt.Errorf("%w: missing %s", ErrInvalidArguments, name)
		}
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidArguments, name)
	}
	return s, nil
}

func exampleFunction(_ context.Context, args []any, kwargs map[string]any) (any, error) {
	name, err := stringArg(args, kwargs, 0, "name", "")
	if err != nil {
		return nil, err
	}
	greeting, err := stringArg(args, kwargs, 1, "greeting", "Hello")
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("%s, %s!", greeting, name), nil
}

func randomCodeFunction(_ context.Context, args []any, kwargs map[string]any) (any, error) {
	length := 6
	var v any
	if len(args) > 0 {
		v = args[0]
	} else if kw, ok := kwargs["length"]; ok {
		v = kw
	}
	if v != nil {
		n, ok := v.(float64)
		if !ok || n < 1 || n > 64 || n != float64(int(n)) {
			return nil, fmt.Errorf("%w: length must be an integer between 1 and 64", ErrInvalidArguments)
		}
		length = int(n)
	}
	return RandomCode(length)
}

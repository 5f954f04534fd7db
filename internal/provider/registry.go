package provider

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownModel indicates the requested model is not registered.
var ErrUnknownModel = errors.New("unknown model")

// ErrDuplicateModel indicates an attempt to register the same model twice.
var ErrDuplicateModel = errors.New("model already registered")

// Registry maintains a mapping of model names to the provider serving them.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Provider
	byName map[string]Provider
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]Provider),
		byName: make(map[string]Provider),
	}
}

// RegisterProvider makes p available for Bind under its name.
func (r *Registry) RegisterProvider(p Provider) error {
	if p == nil {
		return errors.New("provider must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[p.Name()]; exists {
		return fmt.Errorf("provider %q already registered", p.Name())
	}
	r.byName[p.Name()] = p
	return nil
}

// Bind routes model to the registered provider called providerName.
func (r *Registry) Bind(model, providerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byName[providerName]
	if !ok {
		return fmt.Errorf("model %q references unknown provider %q", model, providerName)
	}
	if _, exists := r.models[model]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, model)
	}
	r.models[model] = p
	return nil
}

// Lookup returns the provider serving model.
func (r *Registry) Lookup(model string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.models[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	return p, nil
}

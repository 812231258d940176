package gateway

import (
	"fmt"
	"sort"
	"strings"
)

// Registry resolves gateways by name. Provider selection is configuration, so callers
// never branch on provider names themselves.
type Registry struct {
	gateways    map[string]Gateway
	defaultName string
}

// NewRegistry registers gws and makes defaultName the fallback for empty lookups.
func NewRegistry(defaultName string, gws ...Gateway) (*Registry, error) {
	r := &Registry{gateways: make(map[string]Gateway, len(gws)), defaultName: strings.ToLower(defaultName)}
	for _, gw := range gws {
		r.gateways[strings.ToLower(gw.Name())] = gw
	}
	if _, ok := r.gateways[r.defaultName]; !ok {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownGateway, defaultName)
	}
	return r, nil
}

// Get returns the named gateway, or the default when name is empty.
func (r *Registry) Get(name string) (Gateway, error) {
	if name == "" {
		name = r.defaultName
	}
	gw, ok := r.gateways[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return gw, nil
}

func (r *Registry) Default() Gateway {
	return r.gateways[r.defaultName]
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Provisioner(name string) (AccountProvisioner, error) {
	gw, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	p, ok := gw.(AccountProvisioner)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot provision accounts", ErrUnsupported, gw.Name())
	}
	return p, nil
}

func (r *Registry) Verifier(name string) (PaymentVerifier, error) {
	gw, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	v, ok := gw.(PaymentVerifier)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot verify payments", ErrUnsupported, gw.Name())
	}
	return v, nil
}

func (r *Registry) Checkout(name string) (CheckoutInitiator, error) {
	gw, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	c, ok := gw.(CheckoutInitiator)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot start checkouts", ErrUnsupported, gw.Name())
	}
	return c, nil
}

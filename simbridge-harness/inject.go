package simbridge_harness

import (
	"fmt"
	"reflect"

	"github.com/stubmill/simbridge/simbridge-srv/proxy"
)

var proxyType = reflect.TypeOf((*proxy.Proxy)(nil))

// Registry resolves values for suites by requested type. The harness
// registers the live proxy under *proxy.Proxy; further capability
// types can be provided by tests that need them.
type Registry struct {
	providers map[reflect.Type]func() any
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[reflect.Type]func() any)}
}

// Provide registers a provider for the exact type typ. Providers are
// called at injection time, so the returned value reflects the current
// lifecycle state.
func (r *Registry) Provide(typ reflect.Type, fn func() any) {
	r.providers[typ] = fn
}

// Lookup resolves a value for the requested type.
func (r *Registry) Lookup(typ reflect.Type) (any, bool) {
	fn, ok := r.providers[typ]
	if !ok {
		return nil, false
	}
	return fn(), true
}

// Inject sets every settable field of the target struct whose type has
// a registered provider. The target must be a pointer to a struct;
// unexported fields are skipped.
func (r *Registry) Inject(target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("inject target must be a pointer to a struct, got %T", target)
	}
	elem := v.Elem()
	for i := 0; i < elem.NumField(); i++ {
		field := elem.Field(i)
		if !field.CanSet() {
			continue
		}
		value, ok := r.Lookup(elem.Type().Field(i).Type)
		if !ok {
			continue
		}
		field.Set(reflect.ValueOf(value))
	}
	return nil
}

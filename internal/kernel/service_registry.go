package kernel

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"ex-augmenter/pkg/augmenter"
)

// ServiceRegistry holds the shared singletons modules resolve by name: the
// document stores, outbound clients and the services modules publish for
// each other.
//
// Names are dotted, such as augmenter.tag_store.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]registeredService
}

type registeredService struct {
	value    any
	typeName string
}

// NewServiceRegistry creates an empty service registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]registeredService),
	}
}

// Register stores service under name. A name is taken once; a second
// registration reports the type already holding it.
func (r *ServiceRegistry) Register(name string, service any) error {
	if err := validateServiceName(name); err != nil {
		return fmt.Errorf("register service %q: %w", name, err)
	}
	if isNilService(service) {
		return fmt.Errorf("register service %s: nil %T", name, service)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, taken := r.services[name]; taken {
		return fmt.Errorf("register service %s as %T: held by %s: %w",
			name, service, existing.typeName, augmenter.ErrServiceAlreadyRegistered)
	}
	r.services[name] = registeredService{value: service, typeName: fmt.Sprintf("%T", service)}

	return nil
}

// Resolve returns the service registered under name.
//
// Optional integrations (search index, llm providers) are absent when not
// configured; callers test the error with augmenter.ErrServiceNotFound.
func (r *ServiceRegistry) Resolve(name string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	registered, ok := r.services[name]
	if !ok {
		return nil, fmt.Errorf("resolve service %q: %w", name, augmenter.ErrServiceNotFound)
	}

	return registered.value, nil
}

// Names lists registered service names in sorted order.
func (r *ServiceRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

func validateServiceName(name string) error {
	if strings.TrimSpace(name) != name || name == "" {
		return fmt.Errorf("blank or padded name")
	}
	namespace, key, dotted := strings.Cut(name, ".")
	if !dotted || namespace == "" || key == "" {
		return fmt.Errorf("name must be namespace.key")
	}

	return nil
}

// isNilService reports untyped nils and nil pointers, maps, slices, funcs,
// channels and interfaces wrapped in any.
func isNilService(service any) bool {
	if service == nil {
		return true
	}
	value := reflect.ValueOf(service)
	switch value.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return value.IsNil()
	default:
		return false
	}
}

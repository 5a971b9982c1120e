package omniarchive

import (
	"fmt"
	"sort"
	"sync"
)

var (
	storesMu sync.RWMutex
	stores   = make(map[string]StoreFactory)
)

// ErrUnknownBackend is returned by Open for an unregistered backend name.
var ErrUnknownBackend = &Error{Kind: KindValidation, Msg: "unknown backend"}

// StoreFactory creates an ObjectStore from configuration.
// The config map contains backend-specific configuration keys.
type StoreFactory func(config map[string]string) (ObjectStore, error)

// Register registers a store factory under the given name.
// It is typically called from init() in backend packages.
//
// Register panics if factory is nil or name is already registered.
//
//	func init() {
//	    omniarchive.Register("mybackend", NewFromConfig)
//	}
func Register(name string, factory StoreFactory) {
	storesMu.Lock()
	defer storesMu.Unlock()

	if factory == nil {
		panic("omniarchive: Register factory is nil")
	}
	if _, dup := stores[name]; dup {
		panic("omniarchive: Register called twice for backend " + name)
	}
	stores[name] = factory
}

// Open opens a store by backend name with the given configuration.
//
//	store, err := omniarchive.Open("s3", map[string]string{
//	    "region":   "us-west-2",
//	    "endpoint": "http://localhost:9000",
//	})
func Open(name string, config map[string]string) (ObjectStore, error) {
	storesMu.RLock()
	factory, ok := stores[name]
	storesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return factory(config)
}

// Backends returns a sorted list of registered backend names.
func Backends() []string {
	storesMu.RLock()
	defer storesMu.RUnlock()

	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered returns true if a backend with the given name is registered.
func IsRegistered(name string) bool {
	storesMu.RLock()
	defer storesMu.RUnlock()
	_, ok := stores[name]
	return ok
}

// Unregister removes a registered backend. It is mainly useful in tests.
func Unregister(name string) bool {
	storesMu.Lock()
	defer storesMu.Unlock()

	if _, ok := stores[name]; ok {
		delete(stores, name)
		return true
	}
	return false
}

package pipeline

import (
	"strings"
	"sync"
)

type JobQueueFactory func(dsn string, capacity int) (JobQueue, error)

var queueFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]JobQueueFactory
}{
	factories: map[string]JobQueueFactory{},
}

// RegisterJobQueueFactory installs a queue backend for a DSN scheme,
// overriding any built-in handling of that scheme.
func RegisterJobQueueFactory(scheme string, factory JobQueueFactory) {
	scheme = normalizeBackendScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	queueFactoryRegistry.mu.Lock()
	defer queueFactoryRegistry.mu.Unlock()
	queueFactoryRegistry.factories[scheme] = factory
}

func lookupJobQueueFactory(scheme string) (JobQueueFactory, bool) {
	scheme = normalizeBackendScheme(scheme)
	queueFactoryRegistry.mu.RLock()
	defer queueFactoryRegistry.mu.RUnlock()
	factory, ok := queueFactoryRegistry.factories[scheme]
	return factory, ok
}

func normalizeBackendScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

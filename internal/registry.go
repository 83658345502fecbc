package internal

import (
	"context"
	"errors"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Registration scopes for proxy services.
const (
	// ProjectScope is shared by every repository of one build.
	ProjectScope = "codeArtifactMavenProxy"
	// GlobalScope is used for repositories that are declared before the
	// build's own properties are known.
	GlobalScope = "codeArtifactMavenProxyGlobal"
)

// Registry holds at most one ProxyService per scope key.
type Registry struct {
	starter ServerStarter

	mu       sync.Mutex
	services map[string]*ProxyService
}

func NewRegistry(starter ServerStarter) *Registry {
	return &Registry{
		starter:  starter,
		services: make(map[string]*ProxyService),
	}
}

// GetOrCreate returns the service registered under scope, creating and
// starting it on first request. build runs at most once per scope; callers
// that lose the race receive the same handle.
func (r *Registry) GetOrCreate(scope string, build OptionsBuilder) *ProxyService {
	r.mu.Lock()
	if s, ok := r.services[scope]; ok {
		r.mu.Unlock()
		return s
	}
	s := newProxyService(scope, r.starter)
	r.services[scope] = s
	r.mu.Unlock()

	log.WithField("scope", scope).Debug("Proxy: registering service")
	s.start(build)
	return s
}

// Lookup returns the service registered under scope, if any.
func (r *Registry) Lookup(scope string) (*ProxyService, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.services[scope]
	return s, ok
}

// Close shuts down every registered service. Startup failures have
// already been reported to the callers that needed the service, so only
// stop failures are returned.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	scopes := make([]string, 0, len(r.services))
	services := make(map[string]*ProxyService, len(r.services))
	for scope, s := range r.services {
		scopes = append(scopes, scope)
		services[scope] = s
	}
	r.mu.Unlock()

	sort.Strings(scopes)

	var errs []error
	for _, scope := range scopes {
		err := services[scope].Shutdown(ctx)
		var startErr *ServiceStartError
		switch {
		case err == nil:
		case errors.As(err, &startErr):
			log.WithField("scope", scope).Debug("Proxy: never started, nothing to stop")
		default:
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

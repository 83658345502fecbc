package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Server is a running proxy server.
type Server interface {
	// ActualPort is the local port the server is bound to.
	ActualPort() int
	Stop(ctx context.Context) error
}

// ServerStarter starts a proxy server and returns once it is listening.
type ServerStarter interface {
	Start(ctx context.Context, opts Options) (Server, error)
}

// ServerStarterFunc adapts a function to a ServerStarter.
type ServerStarterFunc func(ctx context.Context, opts Options) (Server, error)

func (f ServerStarterFunc) Start(ctx context.Context, opts Options) (Server, error) {
	return f(ctx, opts)
}

type ServiceState int

const (
	StateCreated ServiceState = iota
	StateStarting
	StateRunning
	StateStartFailed
	StateStopping
	StateStopped
)

func (s ServiceState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStartFailed:
		return "start-failed"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("ServiceState(%d)", int(s))
	}
}

// ErrServiceStopped is returned when the port of a stopped service is
// requested.
var ErrServiceStopped = errors.New("codeartifact proxy has been stopped")

// ProxyService is the handle of one proxy server. The server is started in
// the background when the handle is created; Port and URL block until
// startup has settled. A startup failure is kept and returned to every
// caller, it is never retried.
type ProxyService struct {
	scope   string
	starter ServerStarter

	started  chan struct{}
	server   Server
	startErr error

	mu    sync.Mutex
	state ServiceState

	stopOnce sync.Once
	stopped  chan struct{}
	stopErr  error
}

func newProxyService(scope string, starter ServerStarter) *ProxyService {
	return &ProxyService{
		scope:   scope,
		starter: starter,
		started: make(chan struct{}),
		stopped: make(chan struct{}),
		state:   StateCreated,
	}
}

// start builds the options and launches the server. It must be called
// exactly once.
func (s *ProxyService) start(build OptionsBuilder) {
	s.setState(StateStarting)

	opts, err := build()
	if err != nil {
		s.settle(nil, fmt.Errorf("failed to build proxy options: %w", err))
		return
	}

	go func() {
		server, err := s.starter.Start(context.Background(), opts)
		s.settle(server, err)
	}()
}

func (s *ProxyService) settle(server Server, err error) {
	if err == nil && server == nil {
		err = errors.New("server starter returned no server")
	}
	s.mu.Lock()
	if err != nil {
		s.startErr = &ServiceStartError{Scope: s.scope, Err: err}
		s.state = StateStartFailed
	} else {
		s.server = server
		s.state = StateRunning
	}
	s.mu.Unlock()

	if err != nil {
		log.WithFields(log.Fields{
			"scope": s.scope,
			"error": err,
		}).Error("Proxy: failed to start")
	} else {
		log.WithFields(log.Fields{
			"scope": s.scope,
			"port":  server.ActualPort(),
		}).Info("Proxy: listening")
	}
	close(s.started)
}

func (s *ProxyService) setState(state ServiceState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Scope is the registration key the service was created under.
func (s *ProxyService) Scope() string { return s.scope }

// State reports the current lifecycle state.
func (s *ProxyService) State() ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once startup has either succeeded or failed.
func (s *ProxyService) Done() <-chan struct{} { return s.started }

// Port blocks until startup settles and returns the bound port.
func (s *ProxyService) Port(ctx context.Context) (int, error) {
	select {
	case <-s.started:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	if s.startErr != nil {
		return 0, s.startErr
	}
	if s.State() == StateStopped {
		return 0, ErrServiceStopped
	}
	return s.server.ActualPort(), nil
}

// URL returns the proxy URL of a CodeArtifact repository. An empty owner
// stands for the account of the active credentials.
func (s *ProxyService) URL(ctx context.Context, domain, domainOwner, repository string) (string, error) {
	port, err := s.Port(ctx)
	if err != nil {
		return "", err
	}
	return MavenURL(port, domain, domainOwner, repository), nil
}

// MavenURL formats the local proxy URL for a repository.
func MavenURL(port int, domain, domainOwner, repository string) string {
	if domainOwner == "" {
		domainOwner = "default"
	}
	return fmt.Sprintf("http://localhost:%d/%s/%s/%s", port, domain, domainOwner, repository)
}

// Shutdown stops the server. It waits for an in-flight startup first and
// never stops a server that did not start. Repeated calls return the
// result of the first one. Cancelling ctx abandons the wait, not the stop.
func (s *ProxyService) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		go s.stop()
	})

	select {
	case <-s.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.stopErr
}

func (s *ProxyService) stop() {
	defer close(s.stopped)

	<-s.started
	if s.startErr != nil {
		s.stopErr = s.startErr
		return
	}

	s.setState(StateStopping)
	err := s.server.Stop(context.Background())
	s.setState(StateStopped)

	if err != nil {
		s.stopErr = &ShutdownError{Scope: s.scope, Err: err}
		log.WithFields(log.Fields{
			"scope": s.scope,
			"error": err,
		}).Warn("Proxy: failed to stop cleanly")
		return
	}
	log.WithField("scope", s.scope).Info("Proxy: stopped")
}

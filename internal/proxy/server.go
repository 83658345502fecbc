// Package proxy serves CodeArtifact Maven repositories on a local port.
//
// Requests to /{domain}/{owner}/{repository}/{path} are forwarded to the
// repository's CodeArtifact endpoint with a CodeArtifact authorization
// token attached, so build tools only need plain HTTP to localhost. The
// owner segment "default" stands for the account of the credentials in use.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/codeartifact"
	"github.com/aws/smithy-go"
	log "github.com/sirupsen/logrus"

	"github.com/chukul/caproxy/internal"
)

const defaultListenAddress = "127.0.0.1:0"

// Starter starts proxy servers. It implements internal.ServerStarter.
type Starter struct {
	// ListenAddress defaults to an ephemeral port on the loopback interface.
	ListenAddress string

	// NewClient overrides how the CodeArtifact client is built.
	NewClient func(cfg aws.Config) CodeArtifactAPI
}

var _ internal.ServerStarter = (*Starter)(nil)

// Start binds the listener and begins serving. It returns once the port
// is known.
func (s *Starter) Start(ctx context.Context, opts internal.Options) (internal.Server, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(opts.Credentials),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client CodeArtifactAPI
	if s.NewClient != nil {
		client = s.NewClient(cfg)
	} else {
		client = codeartifact.NewFromConfig(cfg)
	}

	addr := s.ListenAddress
	if addr == "" {
		addr = defaultListenAddress
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	h := &handler{
		cache:   newLookupCache(client, opts.TokenTTL),
		wiretap: opts.WiretapLogLevel,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/{domain}/{owner}/{repository}/{path...}", h.forward)

	server := &Server{
		ln: ln,
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 30 * time.Second,
		},
	}

	go func() {
		if err := server.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Proxy: server error")
		}
	}()

	return server, nil
}

// Server is a running proxy.
type Server struct {
	ln  net.Listener
	srv *http.Server

	stopOnce sync.Once
	stopErr  error
}

func (s *Server) ActualPort() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Stop shuts the server down gracefully. Later calls return the first
// result.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopErr = s.srv.Shutdown(ctx)
	})
	return s.stopErr
}

type handler struct {
	cache   *lookupCache
	wiretap log.Level
}

func (h *handler) forward(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	domain := r.PathValue("domain")
	owner := r.PathValue("owner")
	repository := r.PathValue("repository")
	path := r.PathValue("path")

	entry := log.WithFields(log.Fields{
		"method":     r.Method,
		"domain":     domain,
		"owner":      owner,
		"repository": repository,
		"path":       path,
	})

	token, err := h.cache.Token(r.Context(), domain, owner)
	if err != nil {
		h.fail(w, entry, "authorization token", err)
		return
	}
	endpoint, err := h.cache.Endpoint(r.Context(), domain, owner, repository)
	if err != nil {
		h.fail(w, entry, "repository endpoint", err)
		return
	}
	target, err := url.Parse(endpoint)
	if err != nil {
		h.fail(w, entry, "repository endpoint", err)
		return
	}

	status := 0
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = target.Scheme
			pr.Out.URL.Host = target.Host
			pr.Out.URL.Path = strings.TrimSuffix(target.Path, "/") + "/" + path
			pr.Out.URL.RawPath = ""
			pr.Out.Host = target.Host
			pr.Out.Header.Del("Authorization")
			pr.Out.SetBasicAuth("aws", token)
		},
		ModifyResponse: func(resp *http.Response) error {
			status = resp.StatusCode
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			status = http.StatusBadGateway
			entry.WithError(err).Warn("Proxy: upstream request failed")
			http.Error(w, "upstream request failed", http.StatusBadGateway)
		},
	}
	rp.ServeHTTP(w, r)

	entry.WithFields(log.Fields{
		"status":   status,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Log(h.wiretap, "Proxy: request")
}

func (h *handler) fail(w http.ResponseWriter, entry *log.Entry, stage string, err error) {
	status := http.StatusBadGateway
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		entry = entry.WithField("code", apiErr.ErrorCode())
		switch apiErr.ErrorCode() {
		case "AccessDeniedException":
			status = http.StatusForbidden
		case "ResourceNotFoundException":
			status = http.StatusNotFound
		}
	}
	entry.WithError(err).Warnf("Proxy: failed to get %s", stage)
	http.Error(w, fmt.Sprintf("failed to get %s: %v", stage, err), status)
}

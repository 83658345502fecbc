package internal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Repository is a Maven repository declared by a build.
type Repository struct {
	Name                  string
	URL                   string
	AllowInsecureProtocol bool

	ext   *RepositoryExtension
	hooks []func(*Repository)
}

func NewRepository(name string) *Repository {
	return &Repository{Name: name}
}

// CodeArtifact returns the repository's codeArtifact extension, creating
// it on first use, and applies configure to it when non-nil.
func (r *Repository) CodeArtifact(configure func(*RepositoryExtension)) *RepositoryExtension {
	if r.ext == nil {
		r.ext = &RepositoryExtension{repo: r}
	}
	if configure != nil {
		configure(r.ext)
	}
	return r.ext
}

// Extension returns the codeArtifact extension or nil if the repository
// has none.
func (r *Repository) Extension() *RepositoryExtension { return r.ext }

// OnConfigured registers fn to run every time the extension applies a
// new URL to the repository.
func (r *Repository) OnConfigured(fn func(*Repository)) {
	r.hooks = append(r.hooks, fn)
}

// EffectiveURL returns the URL builds should use. Repositories with an
// incomplete codeArtifact configuration report what is missing.
func (r *Repository) EffectiveURL() (string, error) {
	if r.ext == nil {
		return r.URL, nil
	}
	if err := r.ext.Validate(); err != nil {
		return "", err
	}
	if r.ext.err != nil {
		return "", r.ext.err
	}
	if r.ext.service == nil {
		return "", fmt.Errorf("repository %q has no codeartifact proxy attached", r.Name)
	}
	return r.URL, nil
}

// CodeArtifact configures repo for a CodeArtifact repository in one call.
func CodeArtifact(repo *Repository, domain, domainOwner, repositoryName string) *RepositoryExtension {
	return repo.CodeArtifact(func(e *RepositoryExtension) {
		e.SetDomain(domain)
		e.SetDomainOwner(domainOwner)
		e.SetRepositoryName(repositoryName)
	})
}

// RepositoryExtension collects the CodeArtifact coordinates of a
// repository. Its fields may be set in any order; as soon as domain,
// repository name and proxy service are all known the repository URL is
// rewritten to point at the local proxy, and again after every later
// change.
//
// An extension belongs to one repository and is not safe for concurrent
// use. Setters may be called again from an OnConfigured hook.
type RepositoryExtension struct {
	repo *Repository

	domain         string
	domainOwner    string
	repositoryName string
	service        *ProxyService

	finalizing    bool
	dirty         bool
	finalizations int
	err           error
}

func (e *RepositoryExtension) SetDomain(domain string) {
	changed := e.domain != domain
	e.domain = domain
	e.update(changed)
}

// SetDomainOwner sets the AWS account owning the domain. The empty string
// means the account of the active credentials.
func (e *RepositoryExtension) SetDomainOwner(owner string) {
	changed := e.domainOwner != owner
	e.domainOwner = owner
	e.update(changed)
}

func (e *RepositoryExtension) SetRepositoryName(name string) {
	changed := e.repositoryName != name
	e.repositoryName = name
	e.update(changed)
}

// AttachService sets the proxy the repository is served through.
func (e *RepositoryExtension) AttachService(service *ProxyService) {
	changed := e.service != service
	e.service = service
	e.update(changed)
}

func (e *RepositoryExtension) Domain() (string, error) {
	if e.domain == "" {
		return "", &MissingConfigurationError{Field: "domain"}
	}
	return e.domain, nil
}

func (e *RepositoryExtension) DomainOwner() string { return e.domainOwner }

func (e *RepositoryExtension) RepositoryName() (string, error) {
	if e.repositoryName == "" {
		return "", &MissingConfigurationError{Field: "repositoryName"}
	}
	return e.repositoryName, nil
}

// Finalizations counts how many times a URL has been applied.
func (e *RepositoryExtension) Finalizations() int { return e.finalizations }

// Err returns the error of the last finalization attempt, if it failed.
func (e *RepositoryExtension) Err() error { return e.err }

// Validate reports every missing required field in a single error.
func (e *RepositoryExtension) Validate() error {
	var missing []string
	if _, err := e.Domain(); err != nil {
		missing = append(missing, "domain")
	}
	if _, err := e.RepositoryName(); err != nil {
		missing = append(missing, "repositoryName")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Repository: e.repo.Name, Missing: missing}
	}
	return nil
}

// Configure applies map-style arguments: domain, domainOwner and
// repositoryName. domainOwner is always assigned, so leaving it out
// resets it to the default owner.
func (e *RepositoryExtension) Configure(args map[string]string) {
	if v, ok := args["domain"]; ok {
		e.SetDomain(v)
	}
	e.SetDomainOwner(args["domainOwner"])
	if v, ok := args["repositoryName"]; ok {
		e.SetRepositoryName(v)
	}
}

func (e *RepositoryExtension) complete() bool {
	return e.domain != "" && e.repositoryName != "" && e.service != nil
}

// update runs after every setter. Calls made from a hook while the
// extension is finalizing only schedule another pass when they changed a
// value, so hooks that re-apply current values terminate.
func (e *RepositoryExtension) update(changed bool) {
	if e.finalizing {
		if changed {
			e.dirty = true
		}
		return
	}
	e.tryFinalize()
}

func (e *RepositoryExtension) tryFinalize() {
	e.finalizing = true
	defer func() { e.finalizing = false }()

	for {
		e.dirty = false
		if !e.complete() {
			return
		}
		e.finalize()
		if !e.dirty {
			return
		}
	}
}

func (e *RepositoryExtension) finalize() {
	url, err := e.service.URL(context.Background(), e.domain, e.domainOwner, e.repositoryName)
	if err != nil {
		e.err = err
		log.WithFields(log.Fields{
			"repository": e.repo.Name,
			"error":      err,
		}).Warn("Repository: could not resolve codeartifact proxy URL")
		return
	}

	e.err = nil
	e.repo.URL = url
	e.repo.AllowInsecureProtocol = true
	e.finalizations++

	log.WithFields(log.Fields{
		"repository": e.repo.Name,
		"url":        url,
	}).Debug("Repository: configured from codeArtifact extension")

	for _, hook := range e.repo.hooks {
		hook(e.repo)
	}
}

// ParseShorthand parses the "key=value,key=value" form of map-style
// codeArtifact arguments.
func ParseShorthand(s string) (map[string]string, error) {
	args := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid codeArtifact argument %q, expected key=value", part)
		}
		key = strings.TrimSpace(key)
		switch key {
		case "domain", "domainOwner", "repositoryName":
		default:
			return nil, fmt.Errorf("unknown codeArtifact argument %q", key)
		}
		args[key] = strings.TrimSpace(value)
	}
	return args, nil
}

// RepositoryHandler is a live collection of repositories. Once a proxy
// service has been handed to it, every repository with a codeArtifact
// extension is attached to that service, including repositories added
// later.
type RepositoryHandler struct {
	mu      sync.Mutex
	repos   []*Repository
	service *ProxyService
}

// Add appends repo to the collection.
func (h *RepositoryHandler) Add(repo *Repository) {
	h.mu.Lock()
	h.repos = append(h.repos, repo)
	service := h.service
	h.mu.Unlock()

	if service != nil {
		configureRepository(repo, service)
	}
}

// HandleCodeArtifact attaches service to all current and future
// repositories that carry a codeArtifact extension.
func (h *RepositoryHandler) HandleCodeArtifact(service *ProxyService) {
	h.mu.Lock()
	h.service = service
	repos := append([]*Repository(nil), h.repos...)
	h.mu.Unlock()

	for _, repo := range repos {
		configureRepository(repo, service)
	}
}

// Repositories returns the repositories in declaration order.
func (h *RepositoryHandler) Repositories() []*Repository {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Repository(nil), h.repos...)
}

// Get returns the repository with the given name.
func (h *RepositoryHandler) Get(name string) (*Repository, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.repos {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Validate checks every repository with a codeArtifact extension and
// returns all configuration errors, ordered by repository name.
func (h *RepositoryHandler) Validate() []error {
	repos := h.Repositories()
	sort.SliceStable(repos, func(i, j int) bool { return repos[i].Name < repos[j].Name })

	var errs []error
	for _, r := range repos {
		if r.ext == nil {
			continue
		}
		if err := r.ext.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func configureRepository(repo *Repository, service *ProxyService) {
	ext := repo.Extension()
	if ext == nil {
		log.WithField("repository", repo.Name).Info("Repository: no codeArtifact extension, skipping")
		return
	}
	log.WithField("repository", repo.Name).Info("Repository: configuring from codeArtifact extension")
	ext.AttachService(service)
}

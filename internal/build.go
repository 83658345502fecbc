package internal

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Build ties a build directory, its build file and the proxy services the
// declared repositories are served through.
//
// Plugin repositories are resolved through the global-scope service,
// whose settings come from the environment and defaults only. Regular
// repositories use the project-scope service, which also sees the build
// file properties and command line properties.
type Build struct {
	Dir      string
	File     *BuildFile
	Registry *Registry

	Plugins      *RepositoryHandler
	Repositories *RepositoryHandler

	globalParams  func() *ParameterStore
	projectParams func() *ParameterStore
}

// NewBuild loads the build file from dir. cliProps take precedence over
// the build file properties. A nil env uses the process environment.
func NewBuild(dir string, cliProps Properties, env EnvLookup, starter ServerStarter) (*Build, error) {
	file, err := LoadBuildFile(dir)
	if err != nil {
		return nil, err
	}

	b := &Build{
		Dir:          dir,
		File:         file,
		Registry:     NewRegistry(starter),
		Plugins:      &RepositoryHandler{},
		Repositories: &RepositoryHandler{},
	}
	b.globalParams = sync.OnceValue(func() *ParameterStore {
		return NewParameterStore(nil, env, dir)
	})
	b.projectParams = sync.OnceValue(func() *ParameterStore {
		return NewParameterStore(LayeredProperties{cliProps, Properties(file.Properties)}, env, dir)
	})

	for _, d := range file.PluginRepositories {
		d.Declare(b.Plugins)
	}
	for _, d := range file.Repositories {
		d.Declare(b.Repositories)
	}
	return b, nil
}

// ProjectParameters returns the parameter store of the project scope.
func (b *Build) ProjectParameters() *ParameterStore { return b.projectParams() }

// GlobalParameters returns the parameter store of the global scope.
func (b *Build) GlobalParameters() *ParameterStore { return b.globalParams() }

// GlobalService returns the global-scope proxy, starting it if needed.
func (b *Build) GlobalService() *ProxyService {
	return b.Registry.GetOrCreate(GlobalScope, func() (Options, error) {
		return BuildOptions(b.GlobalParameters())
	})
}

// ProjectService returns the project-scope proxy, starting it if needed.
func (b *Build) ProjectService() *ProxyService {
	return b.Registry.GetOrCreate(ProjectScope, func() (Options, error) {
		return BuildOptions(b.ProjectParameters())
	})
}

// Configure attaches the proxies to the declared repositories. A service
// is only started when at least one repository of its scope needs it.
// Both services start before either is waited on.
func (b *Build) Configure() {
	var plugins, project *ProxyService
	if hasCodeArtifact(b.Plugins) {
		plugins = b.GlobalService()
	}
	if hasCodeArtifact(b.Repositories) {
		project = b.ProjectService()
	}

	if plugins != nil {
		b.Plugins.HandleCodeArtifact(plugins)
	}
	if project != nil {
		b.Repositories.HandleCodeArtifact(project)
	}
	log.WithFields(log.Fields{
		"plugins":      len(b.Plugins.Repositories()),
		"repositories": len(b.Repositories.Repositories()),
	}).Debug("Build: repositories configured")
}

// Validate checks every declared repository.
func (b *Build) Validate() []error {
	return append(b.Plugins.Validate(), b.Repositories.Validate()...)
}

// Close stops every proxy the build started.
func (b *Build) Close(ctx context.Context) error {
	return b.Registry.Close(ctx)
}

func hasCodeArtifact(h *RepositoryHandler) bool {
	for _, r := range h.Repositories() {
		if r.Extension() != nil {
			return true
		}
	}
	return false
}

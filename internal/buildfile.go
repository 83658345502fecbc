package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BuildFileName is the name of the build file looked up in the build
// directory.
const BuildFileName = "caproxy.yaml"

// BuildFile declares the properties and repositories of a build.
type BuildFile struct {
	Properties         map[string]string `yaml:"properties,omitempty"`
	PluginRepositories []RepositoryDecl  `yaml:"pluginRepositories,omitempty"`
	Repositories       []RepositoryDecl  `yaml:"repositories,omitempty"`

	path string
}

// RepositoryDecl declares one Maven repository.
type RepositoryDecl struct {
	Name         string            `yaml:"name"`
	URL          string            `yaml:"url,omitempty"`
	CodeArtifact *CodeArtifactDecl `yaml:"codeArtifact,omitempty"`
}

// CodeArtifactDecl holds the codeArtifact block of a repository. In YAML
// it is either a mapping or a "domain=...,repositoryName=..." string.
type CodeArtifactDecl struct {
	Domain         string `yaml:"domain,omitempty"`
	DomainOwner    string `yaml:"domainOwner,omitempty"`
	RepositoryName string `yaml:"repositoryName,omitempty"`
}

func (d *CodeArtifactDecl) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		args, err := ParseShorthand(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		d.Domain = args["domain"]
		d.DomainOwner = args["domainOwner"]
		d.RepositoryName = args["repositoryName"]
		return nil
	}

	type plain CodeArtifactDecl
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*d = CodeArtifactDecl(p)
	return nil
}

// Path is the file the build file was read from, or "" if none existed.
func (f *BuildFile) Path() string { return f.path }

// LoadBuildFile reads the build file from dir. A missing file yields an
// empty build file.
func LoadBuildFile(dir string) (*BuildFile, error) {
	path := filepath.Join(dir, BuildFileName)
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &BuildFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read build file: %w", err)
	}

	var f BuildFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := f.check(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	f.path = path
	return &f, nil
}

// SaveBuildFile writes f to dir.
func SaveBuildFile(dir string, f *BuildFile) error {
	b, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, BuildFileName), b, 0644)
}

func (f *BuildFile) check() error {
	seen := make(map[string]bool)
	for _, decls := range [][]RepositoryDecl{f.PluginRepositories, f.Repositories} {
		for _, d := range decls {
			if d.Name == "" {
				return fmt.Errorf("repository without name")
			}
			if seen[d.Name] {
				return fmt.Errorf("duplicate repository %q", d.Name)
			}
			seen[d.Name] = true
		}
	}
	return nil
}

// Declare creates a repository from its declaration and adds it to h.
func (d RepositoryDecl) Declare(h *RepositoryHandler) *Repository {
	repo := NewRepository(d.Name)
	repo.URL = d.URL
	if d.CodeArtifact != nil {
		ca := d.CodeArtifact
		repo.CodeArtifact(func(e *RepositoryExtension) {
			if ca.Domain != "" {
				e.SetDomain(ca.Domain)
			}
			e.SetDomainOwner(ca.DomainOwner)
			if ca.RepositoryName != "" {
				e.SetRepositoryName(ca.RepositoryName)
			}
		})
	}
	h.Add(repo)
	return repo
}

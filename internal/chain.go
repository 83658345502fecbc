package internal

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	log "github.com/sirupsen/logrus"
)

// CredentialSource is one named member of a ChainProvider.
type CredentialSource struct {
	Name     string
	Provider aws.CredentialsProvider
}

// ChainProvider tries each source in order and keeps the first credentials
// that could be retrieved. Failures of individual sources are logged and
// never returned on their own.
//
// The winning result is memoized for the life of the chain. If the memoized
// credentials can expire and have expired, only the source that produced
// them is asked again; a full walk happens only when that source fails.
type ChainProvider struct {
	sources []CredentialSource

	mu       sync.Mutex
	resolved bool
	last     int
	creds    aws.Credentials
}

// NewChainProvider returns a chain over the given sources, tried in order.
func NewChainProvider(sources ...CredentialSource) *ChainProvider {
	return &ChainProvider{sources: sources, last: -1}
}

// Retrieve implements aws.CredentialsProvider.
func (c *ChainProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	return c.ResolveCredentials(ctx)
}

// ResolveCredentials returns the memoized credentials, resolving them on
// first use. Concurrent callers wait for the same resolution.
func (c *ChainProvider) ResolveCredentials(ctx context.Context) (aws.Credentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved && !(c.creds.CanExpire && c.creds.Expired()) {
		return c.creds, nil
	}

	if c.resolved && c.last >= 0 {
		src := c.sources[c.last]
		creds, err := src.Provider.Retrieve(ctx)
		if err == nil {
			if creds.Source == "" {
				creds.Source = src.Name
			}
			c.creds = creds
			return creds, nil
		}
		log.WithFields(log.Fields{
			"source": src.Name,
			"error":  err,
		}).Debug("Credentials: refresh from last source failed, walking the chain again")
	}

	var attempts []SourceFailure
	for i, src := range c.sources {
		creds, err := src.Provider.Retrieve(ctx)
		if err != nil {
			log.WithFields(log.Fields{
				"source": src.Name,
				"error":  err,
			}).Debug("Credentials: source unavailable")
			attempts = append(attempts, SourceFailure{Source: src.Name, Err: err})
			continue
		}
		if creds.Source == "" {
			creds.Source = src.Name
		}
		log.WithField("source", src.Name).Debug("Credentials: resolved")
		c.resolved = true
		c.last = i
		c.creds = creds
		return creds, nil
	}

	return aws.Credentials{}, &CredentialsUnavailableError{Attempts: attempts}
}

// Source reports the name of the source that supplied the memoized
// credentials, or "" before the first successful resolution.
func (c *ChainProvider) Source() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last < 0 {
		return ""
	}
	return c.sources[c.last].Name
}

// IsSessionCredentials reports whether creds are temporary session
// credentials rather than a long-lived key pair.
func IsSessionCredentials(creds aws.Credentials) bool {
	return creds.SessionToken != ""
}

// NewDefaultChain builds the standard four-source chain over a parameter
// store: explicit keys, the shared profile files, the container endpoint
// and the instance metadata service.
func NewDefaultChain(params *ParameterStore) *ChainProvider {
	return NewChainProvider(
		CredentialSource{Name: "ParameterCredentials", Provider: &ParameterCredentialsProvider{Params: params}},
		CredentialSource{Name: "ProfileCredentials", Provider: &ProfileCredentialsProvider{Params: params}},
		CredentialSource{Name: "ContainerCredentials", Provider: &ContainerCredentialsProvider{Env: params.env}},
		CredentialSource{Name: "InstanceProfileCredentials", Provider: &InstanceProfileCredentialsProvider{Env: params.env}},
	)
}

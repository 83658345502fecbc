package proxy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codeartifact"
	"github.com/aws/aws-sdk-go-v2/service/codeartifact/types"
	"golang.org/x/sync/singleflight"
)

// CodeArtifactAPI is the subset of the CodeArtifact client the proxy uses.
type CodeArtifactAPI interface {
	GetAuthorizationToken(ctx context.Context, params *codeartifact.GetAuthorizationTokenInput, optFns ...func(*codeartifact.Options)) (*codeartifact.GetAuthorizationTokenOutput, error)
	GetRepositoryEndpoint(ctx context.Context, params *codeartifact.GetRepositoryEndpointInput, optFns ...func(*codeartifact.Options)) (*codeartifact.GetRepositoryEndpointOutput, error)
}

const (
	// Tokens are renewed this long before they expire.
	tokenRefreshMargin = 5 * time.Minute
	minTokenDuration   = 15 * time.Minute
	maxTokenDuration   = 12 * time.Hour
)

type cachedToken struct {
	value   string
	expires time.Time
}

// lookupCache caches authorization tokens per domain and repository
// endpoints per repository. Concurrent misses for the same key share one
// API call.
type lookupCache struct {
	client CodeArtifactAPI
	ttl    time.Duration
	now    func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	tokens    map[string]cachedToken
	endpoints map[string]string
}

func newLookupCache(client CodeArtifactAPI, ttl time.Duration) *lookupCache {
	if ttl < minTokenDuration {
		ttl = minTokenDuration
	}
	if ttl > maxTokenDuration {
		ttl = maxTokenDuration
	}
	return &lookupCache{
		client:    client,
		ttl:       ttl,
		now:       time.Now,
		tokens:    make(map[string]cachedToken),
		endpoints: make(map[string]string),
	}
}

func ownerParam(owner string) *string {
	if owner == "" || owner == "default" {
		return nil
	}
	return aws.String(owner)
}

// Token returns a valid authorization token for the domain.
func (c *lookupCache) Token(ctx context.Context, domain, owner string) (string, error) {
	key := domain + "/" + owner

	c.mu.Lock()
	t, ok := c.tokens[key]
	c.mu.Unlock()
	if ok && c.now().Add(tokenRefreshMargin).Before(t.expires) {
		return t.value, nil
	}

	v, err, _ := c.group.Do("token:"+key, func() (any, error) {
		out, err := c.client.GetAuthorizationToken(context.WithoutCancel(ctx), &codeartifact.GetAuthorizationTokenInput{
			Domain:          aws.String(domain),
			DomainOwner:     ownerParam(owner),
			DurationSeconds: aws.Int64(int64(c.ttl / time.Second)),
		})
		if err != nil {
			return nil, err
		}
		if out.AuthorizationToken == nil {
			return nil, fmt.Errorf("no authorization token returned for domain %s", domain)
		}

		token := cachedToken{value: *out.AuthorizationToken, expires: c.now().Add(c.ttl)}
		if out.Expiration != nil {
			token.expires = *out.Expiration
		}
		c.mu.Lock()
		c.tokens[key] = token
		c.mu.Unlock()
		return token.value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Endpoint returns the Maven endpoint URL of a repository.
func (c *lookupCache) Endpoint(ctx context.Context, domain, owner, repository string) (string, error) {
	key := domain + "/" + owner + "/" + repository

	c.mu.Lock()
	endpoint, ok := c.endpoints[key]
	c.mu.Unlock()
	if ok {
		return endpoint, nil
	}

	v, err, _ := c.group.Do("endpoint:"+key, func() (any, error) {
		out, err := c.client.GetRepositoryEndpoint(context.WithoutCancel(ctx), &codeartifact.GetRepositoryEndpointInput{
			Domain:      aws.String(domain),
			DomainOwner: ownerParam(owner),
			Repository:  aws.String(repository),
			Format:      types.PackageFormatMaven,
		})
		if err != nil {
			return nil, err
		}
		if out.RepositoryEndpoint == nil {
			return nil, fmt.Errorf("no endpoint returned for repository %s/%s", domain, repository)
		}
		c.mu.Lock()
		c.endpoints[key] = *out.RepositoryEndpoint
		c.mu.Unlock()
		return *out.RepositoryEndpoint, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

package internal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	calls   atomic.Int32
	results []stubResult
}

type stubResult struct {
	creds aws.Credentials
	err   error
}

func succeed(accessKeyID string) *stubProvider {
	return &stubProvider{results: []stubResult{{creds: aws.Credentials{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: "secret-" + accessKeyID,
	}}}}
}

func fail(msg string) *stubProvider {
	return &stubProvider{results: []stubResult{{err: errors.New(msg)}}}
}

// Retrieve returns the configured results in order and repeats the last.
func (p *stubProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	n := int(p.calls.Add(1)) - 1
	if n >= len(p.results) {
		n = len(p.results) - 1
	}
	r := p.results[n]
	return r.creds, r.err
}

func TestChainUsesFirstAvailableSource(t *testing.T) {
	first, second, third, fourth := fail("no keys"), fail("no profile"), fail("no container"), succeed("AKIDFOURTH")
	chain := NewChainProvider(
		CredentialSource{Name: "first", Provider: first},
		CredentialSource{Name: "second", Provider: second},
		CredentialSource{Name: "third", Provider: third},
		CredentialSource{Name: "fourth", Provider: fourth},
	)

	creds, err := chain.ResolveCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDFOURTH", creds.AccessKeyID)
	assert.Equal(t, "fourth", creds.Source)
	assert.Equal(t, "fourth", chain.Source())
}

func TestChainStopsAtFirstSuccess(t *testing.T) {
	first, second := succeed("AKIDFIRST"), succeed("AKIDSECOND")
	chain := NewChainProvider(
		CredentialSource{Name: "first", Provider: first},
		CredentialSource{Name: "second", Provider: second},
	)

	creds, err := chain.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDFIRST", creds.AccessKeyID)
	assert.EqualValues(t, 0, second.calls.Load())
}

func TestChainMemoizesResult(t *testing.T) {
	first, second := fail("nope"), succeed("AKIDMEMO")
	chain := NewChainProvider(
		CredentialSource{Name: "first", Provider: first},
		CredentialSource{Name: "second", Provider: second},
	)

	for i := 0; i < 3; i++ {
		creds, err := chain.ResolveCredentials(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "AKIDMEMO", creds.AccessKeyID)
	}
	assert.EqualValues(t, 1, first.calls.Load())
	assert.EqualValues(t, 1, second.calls.Load())
}

func TestChainConcurrentCallersShareResolution(t *testing.T) {
	src := succeed("AKIDSHARED")
	chain := NewChainProvider(CredentialSource{Name: "only", Provider: src})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			creds, err := chain.ResolveCredentials(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "AKIDSHARED", creds.AccessKeyID)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, src.calls.Load())
}

func TestChainReportsEveryFailure(t *testing.T) {
	first, second := fail("no access key"), fail("profile missing")
	chain := NewChainProvider(
		CredentialSource{Name: "ParameterCredentials", Provider: first},
		CredentialSource{Name: "ProfileCredentials", Provider: second},
	)

	_, err := chain.ResolveCredentials(context.Background())
	var unavailable *CredentialsUnavailableError
	require.True(t, errors.As(err, &unavailable))
	require.Len(t, unavailable.Attempts, 2)
	assert.Equal(t, "ParameterCredentials", unavailable.Attempts[0].Source)
	assert.Contains(t, err.Error(), "no access key")
	assert.Contains(t, err.Error(), "profile missing")
	assert.Empty(t, chain.Source())

	// Failures are not memoized.
	_, err = chain.ResolveCredentials(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 2, first.calls.Load())
}

func TestChainWithoutSources(t *testing.T) {
	_, err := NewChainProvider().ResolveCredentials(context.Background())
	var unavailable *CredentialsUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Contains(t, err.Error(), "no credential sources")
}

func TestChainRefreshesExpiredCredentialsFromSameSource(t *testing.T) {
	first := fail("nope")
	second := &stubProvider{results: []stubResult{
		{creds: aws.Credentials{AccessKeyID: "AKIDOLD", SecretAccessKey: "s", CanExpire: true, Expires: time.Now().Add(-time.Minute)}},
		{creds: aws.Credentials{AccessKeyID: "AKIDNEW", SecretAccessKey: "s", CanExpire: true, Expires: time.Now().Add(time.Hour)}},
	}}
	chain := NewChainProvider(
		CredentialSource{Name: "first", Provider: first},
		CredentialSource{Name: "second", Provider: second},
	)

	creds, err := chain.ResolveCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDOLD", creds.AccessKeyID)

	creds, err = chain.ResolveCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDNEW", creds.AccessKeyID)
	assert.Equal(t, "second", creds.Source)

	creds, err = chain.ResolveCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDNEW", creds.AccessKeyID)

	assert.EqualValues(t, 1, first.calls.Load(), "earlier sources are not retried on refresh")
	assert.EqualValues(t, 2, second.calls.Load())
}

func TestDefaultChainPrefersParameters(t *testing.T) {
	params := NewParameterStore(Properties{
		"aws.accessKeyId":     "AKIDPARAM",
		"aws.secretAccessKey": "secret",
		"aws.sessionToken":    "token",
	}, envMap(nil), t.TempDir())
	chain := NewDefaultChain(params)

	creds, err := chain.ResolveCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDPARAM", creds.AccessKeyID)
	assert.Equal(t, "ParameterCredentials", chain.Source())
	assert.True(t, IsSessionCredentials(creds))
}

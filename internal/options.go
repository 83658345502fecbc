package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultTokenTTL        = time.Hour
	DefaultWiretapLogLevel = log.DebugLevel
)

// Options configures one proxy server. They are built once per service and
// not changed afterwards.
type Options struct {
	Credentials     aws.CredentialsProvider
	Region          string
	TokenTTL        time.Duration
	WiretapLogLevel log.Level
}

// OptionsBuilder produces the options for a service. A registry calls it
// at most once per scope.
type OptionsBuilder func() (Options, error)

// BuildOptions derives server options from a parameter store, using the
// default credential chain over the same store.
func BuildOptions(params *ParameterStore) (Options, error) {
	opts := Options{
		Credentials:     NewDefaultChain(params),
		TokenTTL:        DefaultTokenTTL,
		WiretapLogLevel: DefaultWiretapLogLevel,
	}
	opts.Region, _ = params.Region()

	if v, ok := params.Resolve(TokenTTLSetting.Name); ok {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return Options{}, fmt.Errorf("invalid %s %q: %w", TokenTTLSetting.Property, v, err)
		}
		if ttl <= 0 {
			return Options{}, fmt.Errorf("invalid %s %q: must be positive", TokenTTLSetting.Property, v)
		}
		opts.TokenTTL = ttl
	}

	if v, ok := params.Resolve(WiretapLogLevelSetting.Name); ok {
		level, err := log.ParseLevel(strings.ToLower(v))
		if err != nil {
			return Options{}, fmt.Errorf("invalid %s %q: %w", WiretapLogLevelSetting.Property, v, err)
		}
		opts.WiretapLogLevel = level
	}

	return opts, nil
}

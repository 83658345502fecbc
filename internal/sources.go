package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/ec2rolecreds"
	"github.com/aws/aws-sdk-go-v2/credentials/endpointcreds"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// ErrSourceNotApplicable is returned by opportunistic sources when the
// environment they depend on is not present.
var ErrSourceNotApplicable = errors.New("credential source not applicable in this environment")

// ParameterCredentialsProvider supplies the access key, secret key and
// optional session token configured in a ParameterStore.
type ParameterCredentialsProvider struct {
	Params *ParameterStore
}

func (p *ParameterCredentialsProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	accessKeyID, ok := p.Params.AccessKeyID()
	if !ok {
		return aws.Credentials{}, fmt.Errorf("no value for access key ID")
	}
	secretAccessKey, ok := p.Params.SecretAccessKey()
	if !ok {
		return aws.Credentials{}, fmt.Errorf("no value for secret access key")
	}
	sessionToken, _ := p.Params.SessionToken()

	return aws.Credentials{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		SessionToken:    sessionToken,
		Source:          "ParameterCredentials",
	}, nil
}

// ProfileCredentialsProvider loads a named profile from the merged shared
// config and credentials files. Profiles that assume a role from a source
// profile with static keys are resolved through STS.
type ProfileCredentialsProvider struct {
	Params *ParameterStore

	// NewSTSClient overrides how the STS client for role profiles is built.
	NewSTSClient func(cfg aws.Config) stscreds.AssumeRoleAPIClient
}

func (p *ProfileCredentialsProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	profile := p.Params.Profile()
	configFile := p.Params.ConfigFile()
	credentialsFile := p.Params.SharedCredentialsFile()

	sc, err := config.LoadSharedConfigProfile(ctx, profile, func(o *config.LoadSharedConfigOptions) {
		o.ConfigFiles = nonEmpty(configFile)
		o.CredentialsFiles = nonEmpty(credentialsFile)
	})
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("failed to load profile %q: %w", profile, err)
	}

	if sc.RoleARN != "" {
		return p.assumeRole(ctx, sc)
	}

	if !sc.Credentials.HasKeys() {
		return aws.Credentials{}, fmt.Errorf("profile %q does not contain static credentials", profile)
	}

	creds := sc.Credentials
	creds.Source = "ProfileCredentials"
	return creds, nil
}

func (p *ProfileCredentialsProvider) assumeRole(ctx context.Context, sc config.SharedConfig) (aws.Credentials, error) {
	if sc.MFASerial != "" {
		return aws.Credentials{}, fmt.Errorf("profile %q requires MFA, which cannot be prompted for here", sc.Profile)
	}
	if sc.Source == nil || !sc.Source.Credentials.HasKeys() {
		return aws.Credentials{}, fmt.Errorf("profile %q assumes role %s but its source profile has no static credentials",
			sc.Profile, sc.RoleARN)
	}

	region := sc.Region
	if region == "" {
		region, _ = p.Params.Region()
	}
	if region == "" {
		region = sc.Source.Region
	}
	if region == "" {
		region = "us-east-1"
	}

	source := sc.Source.Credentials
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			source.AccessKeyID,
			source.SecretAccessKey,
			source.SessionToken,
		)),
		config.WithSharedConfigFiles(nonEmpty(p.Params.ConfigFile())),
		config.WithSharedCredentialsFiles(nonEmpty(p.Params.SharedCredentialsFile())),
	)
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("failed to load source: %w", err)
	}

	var client stscreds.AssumeRoleAPIClient
	if p.NewSTSClient != nil {
		client = p.NewSTSClient(cfg)
	} else {
		client = sts.NewFromConfig(cfg)
	}

	sessionName := sc.RoleSessionName
	if sessionName == "" {
		sessionName = fmt.Sprintf("caproxy-%d", time.Now().Unix())
	}

	provider := stscreds.NewAssumeRoleProvider(client, sc.RoleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = sessionName
		if sc.ExternalID != "" {
			o.ExternalID = aws.String(sc.ExternalID)
		}
		if sc.RoleDurationSeconds != nil {
			o.Duration = *sc.RoleDurationSeconds
		}
	})

	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("failed to assume role %s: %w", sc.RoleARN, err)
	}
	creds.Source = "ProfileCredentials"
	return creds, nil
}

const containerCredentialsHost = "http://169.254.170.2"

// ContainerCredentialsProvider retrieves credentials from the ECS/EKS
// container credentials endpoint advertised through the environment.
type ContainerCredentialsProvider struct {
	Env EnvLookup
}

func (p *ContainerCredentialsProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	env := p.Env
	if env == nil {
		env = os.LookupEnv
	}

	var endpoint string
	if rel, ok := env("AWS_CONTAINER_CREDENTIALS_RELATIVE_URI"); ok && rel != "" {
		endpoint = containerCredentialsHost + rel
	} else if full, ok := env("AWS_CONTAINER_CREDENTIALS_FULL_URI"); ok && full != "" {
		endpoint = full
	} else {
		return aws.Credentials{}, fmt.Errorf("container credentials endpoint not set: %w", ErrSourceNotApplicable)
	}

	provider := endpointcreds.New(endpoint, func(o *endpointcreds.Options) {
		if tokenFile, ok := env("AWS_CONTAINER_AUTHORIZATION_TOKEN_FILE"); ok && tokenFile != "" {
			o.AuthorizationTokenProvider = endpointcreds.TokenProviderFunc(func() (string, error) {
				b, err := os.ReadFile(tokenFile)
				if err != nil {
					return "", fmt.Errorf("failed to read authorization token file: %w", err)
				}
				return strings.TrimSpace(string(b)), nil
			})
		} else if token, ok := env("AWS_CONTAINER_AUTHORIZATION_TOKEN"); ok {
			o.AuthorizationToken = token
		}
	})

	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, err
	}
	creds.Source = "ContainerCredentials"
	return creds, nil
}

// InstanceProfileCredentialsProvider retrieves the credentials of the EC2
// instance role through the instance metadata service.
type InstanceProfileCredentialsProvider struct {
	Env EnvLookup

	// Client overrides the metadata client, mainly for tests.
	Client ec2rolecreds.GetMetadataAPIClient
}

func (p *InstanceProfileCredentialsProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	env := p.Env
	if env == nil {
		env = os.LookupEnv
	}
	if disabled, ok := env("AWS_EC2_METADATA_DISABLED"); ok && strings.EqualFold(disabled, "true") {
		return aws.Credentials{}, fmt.Errorf("instance metadata disabled: %w", ErrSourceNotApplicable)
	}

	client := p.Client
	if client == nil {
		client = imds.New(imds.Options{})
	}
	provider := ec2rolecreds.New(func(o *ec2rolecreds.Options) {
		o.Client = client
	})

	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, err
	}
	creds.Source = "InstanceProfileCredentials"
	return creds, nil
}

func nonEmpty(path string) []string {
	if path == "" {
		return []string{}
	}
	return []string{path}
}

package internal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func profileParams(t *testing.T, profile, configContent, credentialsContent string) *ParameterStore {
	t.Helper()
	dir := t.TempDir()
	props := Properties{
		"aws.profile":               profile,
		"aws.configFile":            filepath.Join(dir, "config"),
		"aws.sharedCredentialsFile": filepath.Join(dir, "credentials"),
	}
	if configContent != "" {
		writeFile(t, dir, "config", configContent)
	}
	if credentialsContent != "" {
		writeFile(t, dir, "credentials", credentialsContent)
	}
	return NewParameterStore(props, envMap(nil), dir)
}

func TestParameterCredentials(t *testing.T) {
	p := &ParameterCredentialsProvider{Params: NewParameterStore(Properties{
		"aws.accessKeyId":     "AKIDPARAM",
		"aws.secretAccessKey": "secret",
	}, envMap(nil), "")}

	creds, err := p.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDPARAM", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
	assert.Empty(t, creds.SessionToken)
	assert.False(t, IsSessionCredentials(creds))
}

func TestParameterCredentialsRequireBothKeys(t *testing.T) {
	p := &ParameterCredentialsProvider{Params: NewParameterStore(Properties{
		"aws.accessKeyId": "AKIDPARAM",
	}, envMap(nil), "")}

	_, err := p.Retrieve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret access key")
}

func TestProfileCredentialsStatic(t *testing.T) {
	params := profileParams(t, "build", "", `[build]
aws_access_key_id = AKIDPROFILE
aws_secret_access_key = profile-secret
aws_session_token = profile-token
`)
	p := &ProfileCredentialsProvider{Params: params}

	creds, err := p.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDPROFILE", creds.AccessKeyID)
	assert.Equal(t, "profile-secret", creds.SecretAccessKey)
	assert.Equal(t, "profile-token", creds.SessionToken)
	assert.Equal(t, "ProfileCredentials", creds.Source)
}

func TestProfileCredentialsMergesConfigFile(t *testing.T) {
	params := profileParams(t, "build", `[profile build]
aws_access_key_id = AKIDCONFIG
aws_secret_access_key = config-secret
`, "")
	p := &ProfileCredentialsProvider{Params: params}

	creds, err := p.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDCONFIG", creds.AccessKeyID)
}

func TestProfileCredentialsMissingProfile(t *testing.T) {
	params := profileParams(t, "absent", "", `[other]
aws_access_key_id = AKID
aws_secret_access_key = secret
`)
	p := &ProfileCredentialsProvider{Params: params}

	_, err := p.Retrieve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"absent"`)
}

func TestProfileCredentialsWithoutKeys(t *testing.T) {
	params := profileParams(t, "build", `[profile build]
region = eu-west-1
`, "")
	p := &ProfileCredentialsProvider{Params: params}

	_, err := p.Retrieve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not contain static credentials")
}

type fakeSTS struct {
	input *sts.AssumeRoleInput
}

func (f *fakeSTS) AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	f.input = params
	return &sts.AssumeRoleOutput{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     aws.String("ASIAROLE"),
			SecretAccessKey: aws.String("role-secret"),
			SessionToken:    aws.String("role-token"),
			Expiration:      aws.Time(time.Now().Add(time.Hour)),
		},
	}, nil
}

func TestProfileCredentialsAssumeRole(t *testing.T) {
	params := profileParams(t, "deploy", `[profile deploy]
role_arn = arn:aws:iam::123456789012:role/deploy
source_profile = base
external_id = build-42
region = eu-central-1
`, `[base]
aws_access_key_id = AKIDBASE
aws_secret_access_key = base-secret
`)
	fake := &fakeSTS{}
	var region string
	p := &ProfileCredentialsProvider{
		Params: params,
		NewSTSClient: func(cfg aws.Config) stscreds.AssumeRoleAPIClient {
			region = cfg.Region
			return fake
		},
	}

	creds, err := p.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ASIAROLE", creds.AccessKeyID)
	assert.True(t, IsSessionCredentials(creds))
	assert.True(t, creds.CanExpire)
	assert.Equal(t, "ProfileCredentials", creds.Source)

	assert.Equal(t, "eu-central-1", region)
	require.NotNil(t, fake.input)
	assert.Equal(t, "arn:aws:iam::123456789012:role/deploy", aws.ToString(fake.input.RoleArn))
	assert.Equal(t, "build-42", aws.ToString(fake.input.ExternalId))
	assert.True(t, strings.HasPrefix(aws.ToString(fake.input.RoleSessionName), "caproxy-"))
}

func TestProfileCredentialsRejectsMFARoles(t *testing.T) {
	params := profileParams(t, "admin", `[profile admin]
role_arn = arn:aws:iam::123456789012:role/admin
source_profile = base
mfa_serial = arn:aws:iam::123456789012:mfa/me
`, `[base]
aws_access_key_id = AKIDBASE
aws_secret_access_key = base-secret
`)
	p := &ProfileCredentialsProvider{
		Params: params,
		NewSTSClient: func(aws.Config) stscreds.AssumeRoleAPIClient {
			t.Fatal("STS must not be called for MFA profiles")
			return nil
		},
	}

	_, err := p.Retrieve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MFA")
}

func TestContainerCredentials(t *testing.T) {
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "container-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"AccessKeyId":     "ASIACONTAINER",
			"SecretAccessKey": "container-secret",
			"Token":           "container-session",
			"Expiration":      expires.Format(time.RFC3339),
		})
	}))
	defer srv.Close()

	p := &ContainerCredentialsProvider{Env: envMap(map[string]string{
		"AWS_CONTAINER_CREDENTIALS_FULL_URI": srv.URL + "/v2/credentials",
		"AWS_CONTAINER_AUTHORIZATION_TOKEN":  "container-token",
	})}

	creds, err := p.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ASIACONTAINER", creds.AccessKeyID)
	assert.Equal(t, "container-session", creds.SessionToken)
	assert.True(t, creds.CanExpire)
	assert.True(t, creds.Expires.Equal(expires))
	assert.Equal(t, "ContainerCredentials", creds.Source)
}

func TestContainerCredentialsTokenFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "from-file" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"AccessKeyId":     "ASIAFILE",
			"SecretAccessKey": "secret",
			"Token":           "session",
			"Expiration":      time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		})
	}))
	defer srv.Close()

	tokenFile := writeFile(t, t.TempDir(), "token", "from-file\n")
	p := &ContainerCredentialsProvider{Env: envMap(map[string]string{
		"AWS_CONTAINER_CREDENTIALS_FULL_URI":     srv.URL,
		"AWS_CONTAINER_AUTHORIZATION_TOKEN_FILE": tokenFile,
		"AWS_CONTAINER_AUTHORIZATION_TOKEN":      "ignored",
	})}

	creds, err := p.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ASIAFILE", creds.AccessKeyID)
}

func TestContainerCredentialsNotConfigured(t *testing.T) {
	p := &ContainerCredentialsProvider{Env: envMap(nil)}

	_, err := p.Retrieve(context.Background())
	assert.True(t, errors.Is(err, ErrSourceNotApplicable))
}

type fakeMetadata struct {
	calls []string
}

func (f *fakeMetadata) GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error) {
	f.calls = append(f.calls, params.Path)
	if strings.HasSuffix(params.Path, "/") {
		return &imds.GetMetadataOutput{Content: io.NopCloser(strings.NewReader("build-role\n"))}, nil
	}
	body, _ := json.Marshal(map[string]any{
		"Code":            "Success",
		"Type":            "AWS-HMAC",
		"AccessKeyId":     "ASIAINSTANCE",
		"SecretAccessKey": "instance-secret",
		"Token":           "instance-session",
		"LastUpdated":     time.Now().UTC().Format(time.RFC3339),
		"Expiration":      time.Now().Add(6 * time.Hour).UTC().Format(time.RFC3339),
	})
	return &imds.GetMetadataOutput{Content: io.NopCloser(strings.NewReader(string(body)))}, nil
}

func TestInstanceProfileCredentials(t *testing.T) {
	client := &fakeMetadata{}
	p := &InstanceProfileCredentialsProvider{Env: envMap(nil), Client: client}

	creds, err := p.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ASIAINSTANCE", creds.AccessKeyID)
	assert.Equal(t, "InstanceProfileCredentials", creds.Source)
	assert.True(t, IsSessionCredentials(creds))
	require.Len(t, client.calls, 2)
	assert.True(t, strings.HasSuffix(client.calls[1], "build-role"))
}

func TestInstanceProfileCredentialsDisabled(t *testing.T) {
	p := &InstanceProfileCredentialsProvider{
		Env:    envMap(map[string]string{"AWS_EC2_METADATA_DISABLED": "TRUE"}),
		Client: &fakeMetadata{},
	}

	_, err := p.Retrieve(context.Background())
	assert.True(t, errors.Is(err, ErrSourceNotApplicable))
}

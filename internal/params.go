package internal

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
)

// PropertySource supplies settings configured explicitly for a build,
// either in the build file or on the command line.
type PropertySource interface {
	Property(name string) (string, bool)
}

// Properties is a PropertySource backed by a plain map.
type Properties map[string]string

func (p Properties) Property(name string) (string, bool) {
	v, ok := p[name]
	return v, ok && v != ""
}

// LayeredProperties consults each source in order and returns the first
// value found, so the most specific source goes first.
type LayeredProperties []PropertySource

func (l LayeredProperties) Property(name string) (string, bool) {
	for _, src := range l {
		if src == nil {
			continue
		}
		if v, ok := src.Property(name); ok {
			return v, true
		}
	}
	return "", false
}

// EnvLookup has the signature of os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// Setting describes one configurable value and where it may come from.
type Setting struct {
	Name     string
	Property string
	EnvVar   string
	Default  func() string
	// Path settings are resolved against the build directory when relative.
	Path bool
}

var (
	AccessKeyIDSetting = Setting{
		Name: "accessKeyId", Property: "aws.accessKeyId", EnvVar: "AWS_ACCESS_KEY_ID",
	}
	SecretAccessKeySetting = Setting{
		Name: "secretAccessKey", Property: "aws.secretAccessKey", EnvVar: "AWS_SECRET_ACCESS_KEY",
	}
	SessionTokenSetting = Setting{
		Name: "sessionToken", Property: "aws.sessionToken", EnvVar: "AWS_SESSION_TOKEN",
	}
	ConfigFileSetting = Setting{
		Name: "configFile", Property: "aws.configFile", EnvVar: "AWS_CONFIG_FILE",
		Default: config.DefaultSharedConfigFilename, Path: true,
	}
	SharedCredentialsFileSetting = Setting{
		Name: "sharedCredentialsFile", Property: "aws.sharedCredentialsFile", EnvVar: "AWS_SHARED_CREDENTIALS_FILE",
		Default: config.DefaultSharedCredentialsFilename, Path: true,
	}
	ProfileSetting = Setting{
		Name: "profile", Property: "aws.profile", EnvVar: "AWS_PROFILE",
		Default: func() string { return "default" },
	}
	RegionSetting = Setting{
		Name: "region", Property: "aws.region", EnvVar: "AWS_REGION",
	}
	TokenTTLSetting = Setting{
		Name: "tokenTtl", Property: "aws.codeartifact.proxy.tokenTtl",
	}
	WiretapLogLevelSetting = Setting{
		Name: "wiretapLogLevel", Property: "aws.codeartifact.proxy.wiretapLogLevel",
	}
)

// Settings lists every setting known to a ParameterStore.
var Settings = []Setting{
	AccessKeyIDSetting,
	SecretAccessKeySetting,
	SessionTokenSetting,
	ConfigFileSetting,
	SharedCredentialsFileSetting,
	ProfileSetting,
	RegionSetting,
	TokenTTLSetting,
	WiretapLogLevelSetting,
}

// ParameterStore resolves settings from explicit properties, then the
// environment, then the setting's default. Each value is resolved at most
// once, on first access, and never re-read afterwards.
type ParameterStore struct {
	props   PropertySource
	env     EnvLookup
	rootDir string
	values  map[string]func() (string, bool)
}

// NewParameterStore creates a store. props may be nil when no explicit
// properties exist for the scope; a nil env uses os.LookupEnv.
func NewParameterStore(props PropertySource, env EnvLookup, rootDir string) *ParameterStore {
	if env == nil {
		env = os.LookupEnv
	}
	s := &ParameterStore{
		props:   props,
		env:     env,
		rootDir: rootDir,
		values:  make(map[string]func() (string, bool), len(Settings)),
	}
	for _, setting := range Settings {
		setting := setting
		resolve := sync.OnceValues(func() (string, bool) {
			return s.lookup(setting)
		})
		s.values[setting.Name] = resolve
		s.values[setting.Property] = resolve
	}
	return s
}

func (s *ParameterStore) lookup(setting Setting) (string, bool) {
	if s.props != nil && setting.Property != "" {
		if v, ok := s.props.Property(setting.Property); ok {
			return s.convert(setting, v), true
		}
	}
	if setting.EnvVar != "" {
		if v, ok := s.env(setting.EnvVar); ok && v != "" {
			return s.convert(setting, v), true
		}
	}
	if setting.Default != nil {
		if v := setting.Default(); v != "" {
			return v, true
		}
	}
	return "", false
}

func (s *ParameterStore) convert(setting Setting, v string) string {
	if setting.Path && s.rootDir != "" && !filepath.IsAbs(v) {
		return filepath.Join(s.rootDir, v)
	}
	return v
}

// Resolve returns the value of a setting, looked up by its short name or
// its property name. Unknown settings and unset optional values report false.
func (s *ParameterStore) Resolve(name string) (string, bool) {
	resolve, ok := s.values[name]
	if !ok {
		return "", false
	}
	return resolve()
}

// Require is like Resolve but fails for unset values.
func (s *ParameterStore) Require(name string) (string, error) {
	v, ok := s.Resolve(name)
	if !ok {
		field := name
		for _, setting := range Settings {
			if setting.Name == name {
				field = setting.Property
				break
			}
		}
		return "", &MissingConfigurationError{Field: field}
	}
	return v, nil
}

func (s *ParameterStore) AccessKeyID() (string, bool)     { return s.Resolve(AccessKeyIDSetting.Name) }
func (s *ParameterStore) SecretAccessKey() (string, bool) { return s.Resolve(SecretAccessKeySetting.Name) }
func (s *ParameterStore) SessionToken() (string, bool)    { return s.Resolve(SessionTokenSetting.Name) }
func (s *ParameterStore) Region() (string, bool)          { return s.Resolve(RegionSetting.Name) }

func (s *ParameterStore) ConfigFile() string {
	v, _ := s.Resolve(ConfigFileSetting.Name)
	return v
}

func (s *ParameterStore) SharedCredentialsFile() string {
	v, _ := s.Resolve(SharedCredentialsFileSetting.Name)
	return v
}

func (s *ParameterStore) Profile() string {
	v, _ := s.Resolve(ProfileSetting.Name)
	return v
}

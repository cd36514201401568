package slsenv

import (
	"regexp"

	"github.com/joeshaw/envdecode"
	"github.com/pkg/errors"
)

// BootstrapFile names the setup file that installs the LambdaWrapper on the
// sandbox global. New puts it at the front of Config.SetupFiles.
const BootstrapFile = "slsenv/lambda_wrapper"

// MarkerVar is set to "true" in every sandbox process environment.
const MarkerVar = "SERVERLESS_TEST_ROOT"

// DefaultCoverageIgnore is used when a Config has no ignore patterns.
var DefaultCoverageIgnore = []string{"vendor"}

// ignoreCoveragePaths are the build artifact directories of the framework.
var ignoreCoveragePaths = []string{`\.serverless`, `\.serverless_plugins`}

// Config is the test runner configuration an Environment is built from.
// New initializes and mutates SetupFiles and CoveragePathIgnorePatterns in
// place, so one Config may be shared by many environments.
type Config struct {
	// Cwd is the service root directory.
	Cwd    string `env:"SLSENV_CWD,default=."`
	Stage  string `env:"SLSENV_STAGE"`
	Region string `env:"SLSENV_REGION"`

	SetupFiles                 []string
	CoveragePathIgnorePatterns []string
}

// LoadConfig reads a Config from the environment.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, errors.Wrap(err, "decoding slsenv config")
	}
	if cfg.Cwd == "" {
		cfg.Cwd = "."
	}
	return &cfg, nil
}

// CoverageIgnored reports whether path matches one of the coverage ignore
// patterns. Patterns that are not valid regular expressions never match.
func (c *Config) CoverageIgnored(path string) bool {
	for _, p := range c.CoveragePathIgnorePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// register adds the bootstrap and coverage defaults to c, once.
func (c *Config) register() {
	if c.SetupFiles == nil {
		c.SetupFiles = []string{}
	}
	if !contains(c.SetupFiles, BootstrapFile) {
		c.SetupFiles = append([]string{BootstrapFile}, c.SetupFiles...)
	}

	if c.CoveragePathIgnorePatterns == nil {
		c.CoveragePathIgnorePatterns = append([]string(nil), DefaultCoverageIgnore...)
	}
	for _, p := range ignoreCoveragePaths {
		if !contains(c.CoveragePathIgnorePatterns, p) {
			c.CoveragePathIgnorePatterns = append(c.CoveragePathIgnorePatterns, p)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

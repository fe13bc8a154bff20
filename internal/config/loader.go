package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/ElieObadia/backend-proxy/internal/util"
)

// envVarPattern matches ${VAR} and ${VAR:-default} references in YAML files.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Load reads a configuration file and layers it over the defaults. YAML
// values may reference environment variables with ${VAR} or ${VAR:-default}
// syntax. An empty path skips the file and builds the configuration from
// the environment alone.
func Load(path string) (*Config, error) {
	if path == "" {
		return FromEnv()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, util.NewConfigErrorWithCause("file", fmt.Sprintf("reading %s", path), err)
	}

	cfg := Default()
	expanded := substituteEnvVars(data)
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, util.NewConfigErrorWithCause("file", fmt.Sprintf("parsing %s", path), err)
	}

	return cfg, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} references with the
// environment value. An unset variable without a default expands to the
// empty string.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		name := string(groups[1])
		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		return groups[2]
	})
}

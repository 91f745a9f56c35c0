// Package config also provides simple YAML load/save for DBConfig, with
// ${VAR} environment substitution, following the teacher's simple_loader.go.
package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/locustdb/locustdb/pkg/dberrors"
)

// Load reads a DBConfig from a YAML file, substituting ${VAR} references
// against the process environment before parsing.
func Load(path string) (*DBConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.Io, "read config file").WithDetail("path", path)
	}

	content := substituteEnvVars(string(data))

	cfg := DefaultDBConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, dberrors.Wrap(err, dberrors.CorruptData, "parse config yaml").WithDetail("path", path)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *DBConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return dberrors.Wrap(err, dberrors.Internal, "marshal config yaml")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return dberrors.Wrap(err, dberrors.Io, "write config file").WithDetail("path", path)
	}
	return nil
}

func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}

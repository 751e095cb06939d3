package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	getter "github.com/hashicorp/go-getter"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// chainFile is the on-disk shape of the registry config.
type chainFile struct {
	Chains []CanonicalChain `json:"chains" toml:"chains" yaml:"chains"`
}

// LoadFromFile reads a chain registry from a TOML, JSON or YAML file,
// selected by suffix. TOML is the default.
func LoadFromFile(filePath string) (*ChainRegistry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain registry file: %w", err)
	}

	var file chainFile
	switch {
	case strings.HasSuffix(filePath, ".json"):
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse JSON registry: %w", err)
		}
	case strings.HasSuffix(filePath, ".yaml"), strings.HasSuffix(filePath, ".yml"):
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse YAML registry: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse TOML registry: %w", err)
		}
	}

	return NewChainRegistry(file.Chains)
}

// DownloadRegistry fetches a remote chain registry (git repo subdirectory or
// plain HTTP file) into dst so LoadFromFile can read it. The source string
// uses go-getter syntax, e.g. "github.com/acme/chain-registry//routehub".
func DownloadRegistry(src, dst string) error {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(120*time.Second))
	defer cancel()

	client := getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Mode: getter.ClientModeAny,
		Detectors: []getter.Detector{
			&getter.GitHubDetector{},
		},
		Getters: map[string]getter.Getter{
			"git":   &getter.GitGetter{},
			"http":  &getter.HttpGetter{},
			"https": &getter.HttpGetter{},
			"file":  &getter.FileGetter{},
		},
	}
	if err := client.Get(); err != nil {
		return fmt.Errorf("failed to download registry: %w", err)
	}
	return nil
}

// FindRegistryFile returns the first chains file found under dir, preferring
// TOML over JSON over YAML.
func FindRegistryFile(dir string) (string, error) {
	for _, name := range []string{"chains.toml", "chains.json", "chains.yaml", "chains.yml"} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no chains file found in %s", dir)
}

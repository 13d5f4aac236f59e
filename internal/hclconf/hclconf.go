// Package hclconf loads the dataset configuration file. The file is HCL and
// every block is optional; anything unspecified falls back to the documented
// defaults, and a missing file yields the pure default configuration.
//
// Attribute values may reference the process environment as env.NAME.
package hclconf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Config is the fully resolved dataset configuration.
type Config struct {
	Classes ClassConfig
	URLs    URLConfig
	Network NetworkConfig
}

// ClassConfig names the final classes and maps raw annotation class ids onto
// them.
type ClassConfig struct {
	Names   []string
	Mapping map[int]int
}

// URLConfig controls how image URLs are derived from imageset ids.
type URLConfig struct {
	// Template is the imageset base URL with an "{id}" placeholder.
	Template string
}

// NetworkConfig tunes every remote fetch the pipeline performs, for both
// verification and local materialization.
type NetworkConfig struct {
	Workers int           // bounded worker pool size
	Timeout time.Duration // per request
	Retries int           // transient failures only
	Backoff time.Duration // base delay, doubled per attempt
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		Classes: ClassConfig{
			Names:   []string{"red", "blue"},
			Mapping: map[int]int{1: 1, 3: 1, 10: 0},
		},
		URLs: URLConfig{
			Template: "https://prism-static.aruw.org/images/1_{id}/",
		},
		Network: NetworkConfig{
			Workers: 8,
			Timeout: 10 * time.Second,
			Retries: 2,
			Backoff: 500 * time.Millisecond,
		},
	}
}

// fileRoot is the struct used to decode all top-level blocks of a config file.
type fileRoot struct {
	Classes *classBlock   `hcl:"classes,block"`
	URLs    *urlBlock     `hcl:"urls,block"`
	Network *networkBlock `hcl:"network,block"`
}

type classBlock struct {
	Names   []string       `hcl:"names,optional"`
	Mapping map[string]int `hcl:"mapping,optional"`
}

type urlBlock struct {
	Template string `hcl:"template,optional"`
}

type networkBlock struct {
	Workers *int   `hcl:"workers,optional"`
	Timeout string `hcl:"timeout,optional"`
	Retries *int   `hcl:"retries,optional"`
	Backoff string `hcl:"backoff,optional"`
}

// Load reads and decodes the config file at path, merging it over the
// defaults. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(file.Body, evalContext(), &root)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("decoding config file %s: %w", path, diags)
	}

	if root.Classes != nil {
		if len(root.Classes.Names) > 0 {
			cfg.Classes.Names = root.Classes.Names
		}
		if root.Classes.Mapping != nil {
			mapping := make(map[int]int, len(root.Classes.Mapping))
			for raw, final := range root.Classes.Mapping {
				id, err := strconv.Atoi(raw)
				if err != nil {
					return Config{}, fmt.Errorf("config %s: class mapping key %q is not an integer", path, raw)
				}
				mapping[id] = final
			}
			cfg.Classes.Mapping = mapping
		}
	}
	if root.URLs != nil && root.URLs.Template != "" {
		cfg.URLs.Template = root.URLs.Template
	}
	if root.Network != nil {
		if err := mergeNetwork(&cfg.Network, root.Network); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func mergeNetwork(dst *NetworkConfig, block *networkBlock) error {
	if block.Workers != nil {
		dst.Workers = *block.Workers
	}
	if block.Retries != nil {
		dst.Retries = *block.Retries
	}
	if block.Timeout != "" {
		d, err := time.ParseDuration(block.Timeout)
		if err != nil {
			return fmt.Errorf("invalid network.timeout: %w", err)
		}
		dst.Timeout = d
	}
	if block.Backoff != "" {
		d, err := time.ParseDuration(block.Backoff)
		if err != nil {
			return fmt.Errorf("invalid network.backoff: %w", err)
		}
		dst.Backoff = d
	}
	return nil
}

func (c Config) validate() error {
	if len(c.Classes.Names) == 0 {
		return fmt.Errorf("classes.names must not be empty")
	}
	for raw, final := range c.Classes.Mapping {
		if final < 0 || final >= len(c.Classes.Names) {
			return fmt.Errorf("class mapping %d -> %d is outside [0, %d)", raw, final, len(c.Classes.Names))
		}
	}
	if !strings.Contains(c.URLs.Template, "{id}") {
		return fmt.Errorf("urls.template must contain an {id} placeholder")
	}
	if c.Network.Workers <= 0 {
		return fmt.Errorf("network.workers must be positive")
	}
	if c.Network.Retries < 0 {
		return fmt.Errorf("network.retries must not be negative")
	}
	if c.Network.Timeout <= 0 || c.Network.Backoff < 0 {
		return fmt.Errorf("network.timeout must be positive and network.backoff non-negative")
	}
	return nil
}

// evalContext exposes the process environment to config expressions as
// env.NAME.
func evalContext() *hcl.EvalContext {
	env := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = cty.StringVal(v)
		}
	}
	envVal := cty.MapValEmpty(cty.String)
	if len(env) > 0 {
		envVal = cty.MapVal(env)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": envVal},
	}
}

// Package config loads runtime configuration files that map IO names to engines and
// their parameters.
//
// YAML:
//
//	ios:
//	  - name: simulation
//	    engine: BP4
//	    parameters:
//	      FlushStepsCount: 4
//	      NumAggregators: 2
//
// TOML:
//
//	[[ios]]
//	name = "simulation"
//	engine = "BP4"
//	[ios.parameters]
//	FlushStepsCount = 4
package config

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/bp4/errs"
)

// DefaultEngine is the engine type of an IO entry that names none.
const DefaultEngine = "BP4"

// Format is the syntax of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// IO is the configuration of one named IO.
type IO struct {
	Name       string         `yaml:"name" toml:"name"`
	Engine     string         `yaml:"engine" toml:"engine"`
	Parameters map[string]any `yaml:"parameters" toml:"parameters"`
}

// UnmarshalYAML reads the name and engine from the literal scalar text, so an unquoted
// `engine: Null` selects the Null engine instead of decoding as a YAML null.
func (e *IO) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name       yaml.Node      `yaml:"name"`
		Engine     yaml.Node      `yaml:"engine"`
		Parameters map[string]any `yaml:"parameters"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	name, err := literal(raw.Name, "name")
	if err != nil {
		return err
	}
	engine, err := literal(raw.Engine, "engine")
	if err != nil {
		return err
	}
	*e = IO{Name: name, Engine: engine, Parameters: raw.Parameters}

	return nil
}

// literal returns the text of a scalar node. A missing key, an empty value or `~` is empty.
func literal(n yaml.Node, field string) (string, error) {
	switch n.Kind {
	case 0:
		return "", nil
	case yaml.ScalarNode:
		if n.Value == "~" {
			return "", nil
		}

		return n.Value, nil
	default:
		return "", errors.Wrapf(errs.ErrInvalidArgument, "line %d: %s must be a scalar", n.Line, field)
	}
}

// Config is a parsed configuration file.
type Config struct {
	IOs []IO `yaml:"ios" toml:"ios"`
}

// Load reads the configuration file at path from the local file system.
func Load(path string) (*Config, error) {
	return LoadFS(vfs.Default, path)
}

// LoadFS reads the configuration file at path from fs. The format follows the file
// extension: .yaml, .yml or .toml.
func LoadFS(fs vfs.FS, path string) (*Config, error) {
	f, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	file, err := fs.Open(path)
	if err != nil {
		return nil, errs.IO(err, "open config %s", path)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errs.IO(err, "read config %s", path)
	}

	cfg, err := Parse(data, f)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}

	return cfg, nil
}

// FormatOf returns the format implied by the extension of path.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", errors.Wrapf(errs.ErrInvalidArgument, "unknown config format %q", filepath.Ext(path))
	}
}

// Parse decodes a configuration document and validates it.
func Parse(data []byte, f Format) (*Config, error) {
	cfg := &Config{}

	switch f {
	case FormatYAML:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "decode yaml"), errs.ErrInvalidArgument)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "decode toml"), errs.ErrInvalidArgument)
		}
	default:
		return nil, errors.Wrapf(errs.ErrInvalidArgument, "unknown config format %q", f)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.IOs))
	for i := range c.IOs {
		entry := &c.IOs[i]
		if entry.Name == "" {
			return errors.Wrapf(errs.ErrInvalidArgument, "io #%d has no name", i)
		}
		if seen[entry.Name] {
			return errors.Wrapf(errs.ErrInvalidArgument, "io %q defined twice", entry.Name)
		}
		seen[entry.Name] = true
		if entry.Engine == "" {
			entry.Engine = DefaultEngine
		}
	}

	return nil
}

// Lookup returns the IO entry called name.
func (c *Config) Lookup(name string) (IO, bool) {
	if c == nil {
		return IO{}, false
	}
	for _, entry := range c.IOs {
		if entry.Name == name {
			return entry, true
		}
	}

	return IO{}, false
}

// StringParameters returns the IO's parameters with every value rendered as a string,
// the form engine parameter parsing expects.
func (e IO) StringParameters() (map[string]string, error) {
	out := make(map[string]string, len(e.Parameters))
	for k, v := range e.Parameters {
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "io %q parameter %s", e.Name, k), errs.ErrInvalidArgument)
		}
		out[k] = s
	}

	return out, nil
}

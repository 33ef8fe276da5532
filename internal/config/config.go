// =============================================================================
// BuildingSync Migration Tools - Configuration Module
// =============================================================================
//
// This module is responsible for loading and managing the configuration file.
// Every setting has a built-in default, so the configuration file is optional:
// the tools behave like the historical 2.4 -> 2.5 migration script and the
// v2 -> v3 xsltproc driver when no file is given.
//
// CONFIGURATION FILE (config.yaml):
//
//   migration:
//     target_version: "2.5.0"
//     version_attribute: version
//     namespace: http://buildingsync.net/schemas/bedes-auc/2019
//     element: UsefulLife
//     rounding_mode: half_even
//     insert_provenance_comment: true
//   transform:
//     stylesheet: v2_to_v3.xsl
//     pattern: "*.xml"
//     output_dir: .
//     sorted: true
//   logging:
//     level: info
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	// DefaultTargetVersion is the version stamped on migrated documents.
	DefaultTargetVersion = "2.5.0"

	// DefaultVersionAttribute is the root attribute holding the schema version.
	DefaultVersionAttribute = "version"

	// DefaultNamespace is the BuildingSync (bedes-auc) namespace URI.
	DefaultNamespace = "http://buildingsync.net/schemas/bedes-auc/2019"

	// DefaultElement is the element whose value is coerced to an integer.
	DefaultElement = "UsefulLife"

	// DefaultRoundingMode rounds half to even, like the 2.4 -> 2.5 script.
	DefaultRoundingMode = "half_even"

	// DefaultProvenanceComment is inserted as the first child of the root.
	DefaultProvenanceComment = "This BuildingSync v2.5 document was generated from a BuildingSync v2.4 document via the BuildingSync migration scripts"

	// DefaultStylesheet is the stylesheet used by the transform commands.
	DefaultStylesheet = "v2_to_v3.xsl"

	// DefaultPattern selects candidate documents in batch mode.
	DefaultPattern = "*.xml"
)

// RoundingModes lists the accepted values for migration.rounding_mode.
var RoundingModes = []string{"half_even", "half_away", "truncate"}

// LogLevels lists the accepted values for logging.level.
var LogLevels = []string{"debug", "info", "warn", "error"}

// =============================================================================
// CONFIGURATION STRUCTURES
// =============================================================================

// Config holds the whole application configuration.
type Config struct {
	Migration Migration `yaml:"migration"`
	Transform Transform `yaml:"transform"`
	Logging   Logging   `yaml:"logging"`
}

// Migration holds the settings of the version migrator.
type Migration struct {
	// TargetVersion is written to the root version attribute.
	TargetVersion string `yaml:"target_version"`

	// VersionAttribute is the name of the root attribute holding the version.
	VersionAttribute string `yaml:"version_attribute"`

	// Namespace and Element locate the elements whose value is coerced.
	Namespace string `yaml:"namespace"`
	Element   string `yaml:"element"`

	// RoundingMode is one of RoundingModes.
	RoundingMode string `yaml:"rounding_mode"`

	// InsertProvenanceComment controls the comment added as the first child
	// of the root. A pointer so that an explicit false survives defaulting.
	InsertProvenanceComment *bool `yaml:"insert_provenance_comment"`

	// ProvenanceComment is the text of that comment.
	ProvenanceComment string `yaml:"provenance_comment"`
}

// Transform holds the settings of the structural transformer.
type Transform struct {
	// Stylesheet is the path to the XSLT stylesheet.
	Stylesheet string `yaml:"stylesheet"`

	// Pattern is the glob used to discover documents in batch mode.
	Pattern string `yaml:"pattern"`

	// OutputDir receives batch outputs, named after each source's base name.
	// Default: the current working directory.
	OutputDir string `yaml:"output_dir"`

	// Sorted processes discovered files in lexical order.
	Sorted *bool `yaml:"sorted"`
}

// Logging holds the logger settings.
type Logging struct {
	// Level is one of LogLevels.
	Level string `yaml:"level"`
}

// ProvenanceCommentEnabled reports whether the provenance comment is inserted.
func (m Migration) ProvenanceCommentEnabled() bool {
	return m.InsertProvenanceComment == nil || *m.InsertProvenanceComment
}

// SortedEnabled reports whether batch discovery is sorted.
func (t Transform) SortedEnabled() bool {
	return t.Sorted == nil || *t.Sorted
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Default returns a configuration holding only built-in defaults.
func Default() *Config {
	var config Config
	applyDefaults(&config)
	return &config
}

// Load loads the configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the configuration file. An empty path
//     returns the built-in defaults.
//
// RETURNS:
//   - A pointer to the Config struct.
//   - An error if the file cannot be read, parsed, or validated.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyDefaults sets default values for any unset configuration options.
func applyDefaults(config *Config) {
	m := &config.Migration
	if m.TargetVersion == "" {
		m.TargetVersion = DefaultTargetVersion
	}
	if m.VersionAttribute == "" {
		m.VersionAttribute = DefaultVersionAttribute
	}
	if m.Namespace == "" {
		m.Namespace = DefaultNamespace
	}
	if m.Element == "" {
		m.Element = DefaultElement
	}
	if m.RoundingMode == "" {
		m.RoundingMode = DefaultRoundingMode
	}
	if m.ProvenanceComment == "" {
		m.ProvenanceComment = DefaultProvenanceComment
	}

	t := &config.Transform
	if t.Stylesheet == "" {
		t.Stylesheet = DefaultStylesheet
	}
	if t.Pattern == "" {
		t.Pattern = DefaultPattern
	}
	if t.OutputDir == "" {
		t.OutputDir = "."
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	c.Migration.RoundingMode = strings.ToLower(c.Migration.RoundingMode)
	if !lo.Contains(RoundingModes, c.Migration.RoundingMode) {
		return fmt.Errorf("unknown rounding_mode %q (expected one of %s)",
			c.Migration.RoundingMode, strings.Join(RoundingModes, ", "))
	}

	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if !lo.Contains(LogLevels, c.Logging.Level) {
		return fmt.Errorf("unknown logging level %q (expected one of %s)",
			c.Logging.Level, strings.Join(LogLevels, ", "))
	}

	// XML forbids "--" inside comments.
	if strings.Contains(c.Migration.ProvenanceComment, "--") {
		return fmt.Errorf("provenance_comment must not contain \"--\"")
	}

	return nil
}

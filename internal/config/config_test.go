package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := Default()

	assert.Equal(t, "2.5.0", cfg.Migration.TargetVersion)
	assert.Equal(t, "version", cfg.Migration.VersionAttribute)
	assert.Equal(t, DefaultNamespace, cfg.Migration.Namespace)
	assert.Equal(t, "UsefulLife", cfg.Migration.Element)
	assert.Equal(t, "half_even", cfg.Migration.RoundingMode)
	assert.True(t, cfg.Migration.ProvenanceCommentEnabled())
	assert.Equal(t, "*.xml", cfg.Transform.Pattern)
	assert.True(t, cfg.Transform.SortedEnabled())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
migration:
  rounding_mode: TRUNCATE
  insert_provenance_comment: false
transform:
  stylesheet: custom.xsl
  sorted: false
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "truncate", cfg.Migration.RoundingMode)
	assert.False(t, cfg.Migration.ProvenanceCommentEnabled())
	assert.Equal(t, DefaultProvenanceComment, cfg.Migration.ProvenanceComment)
	assert.Equal(t, "custom.xsl", cfg.Transform.Stylesheet)
	assert.False(t, cfg.Transform.SortedEnabled())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad yaml", content: "migration: [unclosed"},
		{name: "bad rounding mode", content: "migration:\n  rounding_mode: ceiling\n"},
		{name: "bad log level", content: "logging:\n  level: chatty\n"},
		{name: "bad comment", content: "migration:\n  provenance_comment: \"a -- b\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.content))
			assert.Error(t, err)
		})
	}
}

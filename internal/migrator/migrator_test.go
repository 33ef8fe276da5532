package migrator

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/buildingsync/bsync-migrate/internal/config"
	"github.com/buildingsync/bsync-migrate/internal/document"
	"github.com/buildingsync/bsync-migrate/internal/types"
)

const v24Document = `<?xml version="1.0" encoding="UTF-8"?>
<auc:BuildingSync xmlns:auc="http://buildingsync.net/schemas/bedes-auc/2019" version="2.4.0">
  <auc:Facilities>
    <auc:Facility ID="Facility-1">
      <auc:Measures>
        <auc:Measure ID="Measure-1">
          <auc:UsefulLife>15.5</auc:UsefulLife>
        </auc:Measure>
        <auc:Measure ID="Measure-2">
          <auc:UsefulLife>20</auc:UsefulLife>
        </auc:Measure>
        <auc:Measure ID="Measure-3">
          <auc:UsefulLife>7.2</auc:UsefulLife>
        </auc:Measure>
      </auc:Measures>
    </auc:Facility>
  </auc:Facilities>
</auc:BuildingSync>
`

func newObservedMigrator(options Options) (*Migrator, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return New(options, zap.New(core)), logs
}

func migrateString(t *testing.T, m *Migrator, input string) (string, Result) {
	t.Helper()
	var out bytes.Buffer
	result, err := m.Migrate(strings.NewReader(input), &out, "input.xml")
	require.NoError(t, err)
	return out.String(), result
}

func TestMigrate(t *testing.T) {
	t.Parallel()
	m, logs := newObservedMigrator(DefaultOptions())

	out, result := migrateString(t, m, v24Document)

	assert.Equal(t, "2.4.0", result.PreviousVersion)
	assert.Equal(t, "2.5.0", result.Version)
	assert.Equal(t, 3, result.Matched)
	assert.Equal(t, []types.Change{
		{Path: "auc:Facilities/auc:Facility/auc:Measures/auc:Measure[1]/auc:UsefulLife", Old: "15.5", New: "16"},
		{Path: "auc:Facilities/auc:Facility/auc:Measures/auc:Measure[3]/auc:UsefulLife", Old: "7.2", New: "7"},
	}, result.Changes)

	assert.Contains(t, out, `version="2.5.0"`)
	assert.Contains(t, out, "<auc:UsefulLife>16</auc:UsefulLife>")
	assert.Contains(t, out, "<auc:UsefulLife>20</auc:UsefulLife>")
	assert.Contains(t, out, "<auc:UsefulLife>7</auc:UsefulLife>")
	assert.NotContains(t, out, "15.5")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "changing auc:Facilities/auc:Facility/auc:Measures/auc:Measure[1]/auc:UsefulLife value from 15.5 to 16", entries[0].Message)
	assert.Equal(t, "7.2", entries[1].ContextMap()["old"])
}

func TestMigrateInsertsProvenanceCommentFirst(t *testing.T) {
	t.Parallel()
	m, _ := newObservedMigrator(DefaultOptions())

	out, _ := migrateString(t, m, v24Document)

	doc, err := document.Parse([]byte(out), "out.xml")
	require.NoError(t, err)

	root := doc.Root()
	require.NotEmpty(t, root.Child)
	comment, ok := root.Child[0].(*etree.Comment)
	require.True(t, ok)
	assert.Equal(t, config.DefaultProvenanceComment, comment.Data)
	assert.Contains(t, out, `version="2.5.0"><!--`+config.DefaultProvenanceComment+`-->`)

	// Existing children keep their order after the comment.
	elements := root.ChildElements()
	require.Len(t, elements, 1)
	assert.Equal(t, "Facilities", elements[0].Tag)
}

func TestMigrateWithoutProvenanceComment(t *testing.T) {
	t.Parallel()
	options := DefaultOptions()
	options.InsertProvenanceComment = false
	m, _ := newObservedMigrator(options)

	out, _ := migrateString(t, m, v24Document)
	assert.NotContains(t, out, "<!--")
}

func TestMigrateVersionStamp(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		previous string
	}{
		{name: "older version", input: `<BuildingSync version="2.4.0"/>`, previous: "2.4.0"},
		{name: "already target", input: `<BuildingSync version="2.5.0"/>`, previous: "2.5.0"},
		{name: "missing attribute", input: `<BuildingSync/>`, previous: ""},
		{name: "attribute order kept", input: `<BuildingSync a="1" version="x" b="2"/>`, previous: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			options := DefaultOptions()
			options.InsertProvenanceComment = false
			m, _ := newObservedMigrator(options)

			out, result := migrateString(t, m, tt.input)
			assert.Equal(t, tt.previous, result.PreviousVersion)

			doc, err := document.Parse([]byte(out), "out.xml")
			require.NoError(t, err)
			assert.Equal(t, "2.5.0", doc.Root().SelectAttrValue("version", ""))
		})
	}

	options := DefaultOptions()
	options.InsertProvenanceComment = false
	m, _ := newObservedMigrator(options)
	out, _ := migrateString(t, m, `<BuildingSync a="1" version="x" b="2"/>`)
	assert.Equal(t, `<BuildingSync a="1" version="2.5.0" b="2"/>`, out)
}

func TestMigrateDefaultNamespaceAndForeignElements(t *testing.T) {
	t.Parallel()
	input := `<BuildingSync xmlns="http://buildingsync.net/schemas/bedes-auc/2019">` +
		`<UsefulLife>15.5</UsefulLife>` +
		`<x:UsefulLife xmlns:x="urn:not-buildingsync">15.5</x:UsefulLife>` +
		`</BuildingSync>`
	m, _ := newObservedMigrator(DefaultOptions())

	out, result := migrateString(t, m, input)

	require.Len(t, result.Changes, 1)
	assert.Equal(t, "UsefulLife", result.Changes[0].Path)
	assert.Contains(t, out, `<UsefulLife>16</UsefulLife>`)
	assert.Contains(t, out, `<x:UsefulLife xmlns:x="urn:not-buildingsync">15.5</x:UsefulLife>`)
}

func TestMigrateTruncate(t *testing.T) {
	t.Parallel()
	options := DefaultOptions()
	options.Rounding = Truncate
	m, _ := newObservedMigrator(options)

	_, result := migrateString(t, m, v24Document)
	require.Len(t, result.Changes, 2)
	assert.Equal(t, "15", result.Changes[0].New)
}

func TestMigrateCanonicalValuesUntouched(t *testing.T) {
	t.Parallel()
	input := `<BuildingSync xmlns="http://buildingsync.net/schemas/bedes-auc/2019"><UsefulLife>20</UsefulLife></BuildingSync>`
	m, logs := newObservedMigrator(DefaultOptions())

	_, result := migrateString(t, m, input)

	assert.Equal(t, 1, result.Matched)
	assert.Empty(t, result.Changes)
	assert.Zero(t, logs.Len())
}

func TestMigrateTwiceIsStable(t *testing.T) {
	t.Parallel()
	m, logs := newObservedMigrator(DefaultOptions())

	first, _ := migrateString(t, m, v24Document)
	before := logs.Len()

	second, result := migrateString(t, m, first)

	assert.Equal(t, first, second)
	assert.Empty(t, result.Changes)
	assert.Equal(t, before, logs.Len())
	assert.Equal(t, 1, strings.Count(second, "<!--"))
}

func TestMigrateValueError(t *testing.T) {
	t.Parallel()
	input := `<BuildingSync xmlns="http://buildingsync.net/schemas/bedes-auc/2019">` +
		`<UsefulLife>15.5</UsefulLife><UsefulLife>fifteen</UsefulLife></BuildingSync>`
	m, logs := newObservedMigrator(DefaultOptions())

	var out bytes.Buffer
	_, err := m.Migrate(strings.NewReader(input), &out, "input.xml")

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrValue)
	assert.Contains(t, err.Error(), "UsefulLife[2]")
	assert.Zero(t, out.Len())
	assert.Zero(t, logs.Len())
}

func TestApplyValueErrorLeavesDocumentUntouched(t *testing.T) {
	t.Parallel()
	input := `<auc:BuildingSync xmlns:auc="http://buildingsync.net/schemas/bedes-auc/2019" version="2.4.0">` +
		`<auc:UsefulLife>15.5</auc:UsefulLife><auc:UsefulLife>n/a</auc:UsefulLife></auc:BuildingSync>`
	doc, err := document.Parse([]byte(input), "input.xml")
	require.NoError(t, err)

	changes, err := New(DefaultOptions(), nil).Apply(doc)
	require.ErrorIs(t, err, types.ErrValue)
	assert.Empty(t, changes)

	out, err := doc.WriteToString()
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestMigrateFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	source := filepath.Join(dir, "building.xml")
	require.NoError(t, os.WriteFile(source, []byte(v24Document), 0o644))

	m := New(DefaultOptions(), nil)

	t.Run("distinct destination", func(t *testing.T) {
		destination := filepath.Join(dir, "building-2.5.xml")
		result, err := m.MigrateFile(source, destination)
		require.NoError(t, err)
		assert.Equal(t, destination, result.Destination)

		original, err := os.ReadFile(source)
		require.NoError(t, err)
		assert.Equal(t, v24Document, string(original))

		migrated, err := os.ReadFile(destination)
		require.NoError(t, err)
		assert.Contains(t, string(migrated), `version="2.5.0"`)
	})

	t.Run("in place", func(t *testing.T) {
		result, err := m.MigrateFile(source, "")
		require.NoError(t, err)
		assert.Equal(t, source, result.Destination)

		migrated, err := os.ReadFile(source)
		require.NoError(t, err)
		assert.Contains(t, string(migrated), "<auc:UsefulLife>16</auc:UsefulLife>")
	})
}

func TestMigrateFileFailuresWriteNothing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m := New(DefaultOptions(), nil)

	t.Run("not found", func(t *testing.T) {
		destination := filepath.Join(dir, "from-missing.xml")
		_, err := m.MigrateFile(filepath.Join(dir, "missing.xml"), destination)
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrNotFound)
		assert.NoFileExists(t, destination)
	})

	t.Run("parse error", func(t *testing.T) {
		source := filepath.Join(dir, "broken.xml")
		broken := "<BuildingSync><<</BuildingSync>"
		require.NoError(t, os.WriteFile(source, []byte(broken), 0o644))

		_, err := m.MigrateFile(source, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrParse)

		data, err := os.ReadFile(source)
		require.NoError(t, err)
		assert.Equal(t, broken, string(data))
	})

	t.Run("value error", func(t *testing.T) {
		source := filepath.Join(dir, "bad-value.xml")
		input := strings.Replace(v24Document, "7.2", "seven", 1)
		require.NoError(t, os.WriteFile(source, []byte(input), 0o644))

		_, err := m.MigrateFile(source, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrValue)

		data, err := os.ReadFile(source)
		require.NoError(t, err)
		assert.Equal(t, input, string(data))
	})
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Migration.RoundingMode = "truncate"
	disabled := false
	cfg.Migration.InsertProvenanceComment = &disabled

	options, err := OptionsFromConfig(cfg.Migration)
	require.NoError(t, err)
	assert.Equal(t, Truncate, options.Rounding)
	assert.False(t, options.InsertProvenanceComment)
	assert.Equal(t, document.Locator{Space: config.DefaultNamespace, Local: "UsefulLife"}, options.Locator)

	cfg.Migration.RoundingMode = "ceiling"
	_, err = OptionsFromConfig(cfg.Migration)
	assert.Error(t, err)
}

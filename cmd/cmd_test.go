package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildingsync/bsync-migrate/internal/report"
)

const sourceDocument = `<auc:BuildingSync xmlns:auc="http://buildingsync.net/schemas/bedes-auc/2019" version="2.4.0">` +
	`<auc:Facilities><auc:Facility><auc:Measures>` +
	`<auc:Measure><auc:UsefulLife>15.5</auc:UsefulLife></auc:Measure>` +
	`<auc:Measure><auc:UsefulLife>20</auc:UsefulLife></auc:Measure>` +
	`</auc:Measures></auc:Facility></auc:Facilities></auc:BuildingSync>`

const versionStylesheet = `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform"
    xmlns:auc="http://buildingsync.net/schemas/bedes-auc/2019">
  <xsl:template match="@*|node()">
    <xsl:copy><xsl:apply-templates select="@*|node()"/></xsl:copy>
  </xsl:template>
  <xsl:template match="/auc:BuildingSync/@version">
    <xsl:attribute name="version">3.0.0</xsl:attribute>
  </xsl:template>
</xsl:stylesheet>`

// run executes the root command with args. Flag variables outlive a single
// Execute call, so they are reset first.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, verbose = "", false
	toFile, rounding, noComment, reportPath = "", "", false, ""
	stylesheetPath, outputPath, outDir, pattern, unsorted = "", "", "", "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func write(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMigrateCommand(t *testing.T) {
	dir := t.TempDir()
	src := write(t, filepath.Join(dir, "building.xml"), sourceDocument)
	dst := filepath.Join(dir, "building-2.5.xml")
	xlsx := filepath.Join(dir, "changes.xlsx")

	out, err := run(t, "migrate", src, "--to_file", dst, "--report", xlsx)
	require.NoError(t, err)
	assert.Contains(t, out, "1 of 2 values changed")

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(data), `version="2.5.0"`)
	assert.Contains(t, string(data), `<auc:UsefulLife>16</auc:UsefulLife>`)
	assert.Contains(t, string(data), `<auc:UsefulLife>20</auc:UsefulLife>`)

	original, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, sourceDocument, string(original))

	entries, err := report.Read(xlsx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "15.5", entries[0].Old)
	assert.Equal(t, "16", entries[0].New)
}

func TestMigrateCommandFlags(t *testing.T) {
	dir := t.TempDir()
	src := write(t, filepath.Join(dir, "building.xml"), sourceDocument)

	_, err := run(t, "migrate", src, "--rounding", "truncate", "--no-comment")
	require.NoError(t, err)

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<auc:UsefulLife>15</auc:UsefulLife>`)
	assert.NotContains(t, string(data), "<!--")

	_, err = run(t, "migrate", src, "--rounding", "ceiling")
	assert.Error(t, err)
}

func TestMigrateCommandMissingFile(t *testing.T) {
	_, err := run(t, "migrate", filepath.Join(t.TempDir(), "missing.xml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not be read")
}

func TestTransformCommand(t *testing.T) {
	dir := t.TempDir()
	src := write(t, filepath.Join(dir, "building.xml"), sourceDocument)
	xsl := write(t, filepath.Join(dir, "v2_to_v3.xsl"), versionStylesheet)
	dst := filepath.Join(dir, "v3.xml")

	out, err := run(t, "transform", src, "--xsl", xsl, "--output", dst)
	require.NoError(t, err)
	assert.Contains(t, out, dst)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, string(data), `version="3.0.0"`)
}

func TestTransformCommandKeepsSource(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "building.xml"), sourceDocument)
	xsl := write(t, filepath.Join(dir, "v2_to_v3.xsl"), versionStylesheet)
	t.Chdir(dir)

	_, err := run(t, "transform", "building.xml", "--xsl", xsl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to overwrite")

	data, err := os.ReadFile(filepath.Join(dir, "building.xml"))
	require.NoError(t, err)
	assert.Equal(t, sourceDocument, string(data))
}

func TestTransformAllCommand(t *testing.T) {
	dir := t.TempDir()
	examples := filepath.Join(dir, "examples")
	results := filepath.Join(dir, "v3")
	require.NoError(t, os.Mkdir(examples, 0o755))
	write(t, filepath.Join(examples, "a.xml"), sourceDocument)
	write(t, filepath.Join(examples, "b.xml"), `<auc:BuildingSync>`)
	xsl := write(t, filepath.Join(dir, "v2_to_v3.xsl"), versionStylesheet)

	out, err := run(t, "transform-all", examples, "--xsl", xsl, "--out-dir", results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files failed")
	assert.Contains(t, out, "1 succeeded, 1 failed")

	assert.FileExists(t, filepath.Join(results, "a.xml"))
	assert.NoFileExists(t, filepath.Join(results, "b.xml"))
}

func TestTransformMissingStylesheet(t *testing.T) {
	dir := t.TempDir()
	src := write(t, filepath.Join(dir, "building.xml"), sourceDocument)

	_, err := run(t, "transform", src, "--xsl", filepath.Join(dir, "missing.xsl"))
	assert.Error(t, err)
}

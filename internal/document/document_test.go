package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildingsync/bsync-migrate/internal/types"
)

const auc = "http://buildingsync.net/schemas/bedes-auc/2019"

const sample = `<?xml version="1.0" encoding="UTF-8"?>
<auc:BuildingSync xmlns:auc="http://buildingsync.net/schemas/bedes-auc/2019" version="2.4.0">
  <!-- keep me -->
  <auc:Facilities>
    <auc:Facility ID="F1">
      <auc:Measures>
        <auc:Measure ID="M1"><auc:UsefulLife>15.5</auc:UsefulLife></auc:Measure>
        <auc:Measure ID="M2"><auc:UsefulLife>20</auc:UsefulLife></auc:Measure>
      </auc:Measures>
    </auc:Facility>
  </auc:Facilities>
  <other:UsefulLife xmlns:other="urn:other">3.3</other:UsefulLife>
</auc:BuildingSync>
`

func TestParseAndRoundTrip(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte(sample), "sample.xml")
	require.NoError(t, err)

	out, err := Bytes(doc, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, sample, string(out))
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
	}{
		{name: "syntax error", input: "<BuildingSync><<</BuildingSync>"},
		{name: "plain text", input: "not xml"},
		{name: "empty", input: ""},
		{name: "two root elements", input: "<a/><b/>"},
		{name: "text after root", input: "<a/>trailing"},
		{name: "text before root", input: "leading<a/>"},
		{name: "duplicate attribute", input: `<a x="1" x="2"/>`},
		{name: "duplicate attribute on descendant", input: `<a><b y="1" y="1"/></a>`},
		{name: "mismatched tags", input: "<a></b>"},
		{name: "unclosed tag", input: "<a>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.input), "bad.xml")
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrParse)
			assert.Contains(t, err.Error(), "bad.xml")
		})
	}
}

func TestParseAcceptsProlog(t *testing.T) {
	t.Parallel()
	input := "<?xml version=\"1.0\"?>\n<!-- header -->\n<a x=\"1\" y=\"2\"><b x=\"1\"/></a>\n"
	doc, err := Parse([]byte(input), "prolog.xml")
	require.NoError(t, err)
	assert.Equal(t, "a", doc.Root().Tag)
}

func TestLoadNotFound(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "missing.xml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFindAll(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte(sample), "sample.xml")
	require.NoError(t, err)

	matches := FindAll(doc.Root(), Locator{Space: auc, Local: "UsefulLife"})
	require.Len(t, matches, 2)
	assert.Equal(t, "15.5", matches[0].Text())
	assert.Equal(t, "20", matches[1].Text())

	other := FindAll(doc.Root(), Locator{Space: "urn:other", Local: "UsefulLife"})
	require.Len(t, other, 1)
	assert.Equal(t, "3.3", other[0].Text())

	assert.Empty(t, FindAll(doc.Root(), Locator{Space: auc, Local: "Missing"}))
}

func TestFindAllDefaultNamespace(t *testing.T) {
	t.Parallel()
	input := `<BuildingSync xmlns="http://buildingsync.net/schemas/bedes-auc/2019"><UsefulLife>1</UsefulLife></BuildingSync>`
	doc, err := Parse([]byte(input), "default.xml")
	require.NoError(t, err)

	matches := FindAll(doc.Root(), Locator{Space: auc, Local: "UsefulLife"})
	require.Len(t, matches, 1)
	assert.Empty(t, FindAll(doc.Root(), Locator{Local: "UsefulLife"}))
}

func TestPath(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte(sample), "sample.xml")
	require.NoError(t, err)

	matches := FindAll(doc.Root(), Locator{Space: auc, Local: "UsefulLife"})
	require.Len(t, matches, 2)

	assert.Equal(t, "auc:Facilities/auc:Facility/auc:Measures/auc:Measure[1]/auc:UsefulLife", Path(matches[0]))
	assert.Equal(t, "auc:Facilities/auc:Facility/auc:Measures/auc:Measure[2]/auc:UsefulLife", Path(matches[1]))
	assert.Equal(t, ".", Path(doc.Root()))
}

func TestWriteDeclarationAndIndent(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte(`<a><b>1</b></a>`), "a.xml")
	require.NoError(t, err)

	out, err := Bytes(doc, PrettyWriteOptions())
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, text, "<a>\n  <b>1</b>\n</a>")
	assert.Equal(t, 1, strings.Count(text, "<?xml"))

	again, err := Bytes(doc, PrettyWriteOptions())
	require.NoError(t, err)
	assert.Equal(t, text, string(again))
}

func TestWriteFile(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte(`<a/>`), "a.xml")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.xml")
	require.NoError(t, WriteFile(doc, path, WriteOptions{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `<a/>`, string(data))
}

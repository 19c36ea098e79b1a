package assets

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource(t *testing.T) {
	for _, name := range []string{ScriptName, StylesheetName} {
		data, err := Source(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, data, name)
	}
}

func TestBuildRevisionsByContent(t *testing.T) {
	b, err := Build(Options{})
	require.NoError(t, err)

	manifest := b.Manifest()
	require.Len(t, manifest, 2)
	assert.Regexp(t, regexp.MustCompile(`^playground\.[0-9a-f]{10}\.js$`), manifest[ScriptName])
	assert.Regexp(t, regexp.MustCompile(`^playground\.[0-9a-f]{10}\.css$`), manifest[StylesheetName])

	a, ok := b.Lookup(manifest[ScriptName])
	require.True(t, ok)
	assert.Equal(t, "application/javascript; charset=utf-8", a.ContentType)
	assert.Equal(t, `"`+a.Hash+`"`, a.ETag())

	again, err := Build(Options{})
	require.NoError(t, err)
	assert.Equal(t, manifest, again.Manifest())

	themed, err := Build(Options{ExtraCSS: ".chroma { color: red }"})
	require.NoError(t, err)
	assert.NotEqual(t, manifest[StylesheetName], themed.Manifest()[StylesheetName])
	assert.Equal(t, manifest[ScriptName], themed.Manifest()[ScriptName])
}

func TestBuildMinifies(t *testing.T) {
	plain, err := Build(Options{})
	require.NoError(t, err)
	small, err := Build(Options{Minify: true})
	require.NoError(t, err)

	for _, name := range []string{ScriptName, StylesheetName} {
		p, _ := plain.Lookup(plain.Manifest()[name])
		s, _ := small.Lookup(small.Manifest()[name])
		assert.Less(t, len(s.Body), len(p.Body), name)
	}
}

func TestPath(t *testing.T) {
	b, err := Build(Options{})
	require.NoError(t, err)
	assert.Equal(t, "/coloraide/assets/"+b.Manifest()[ScriptName], b.Path("/coloraide/", ScriptName))
	assert.Equal(t, "/assets/"+b.Manifest()[ScriptName], b.Path("", ScriptName))
	assert.Empty(t, b.Path("", "missing.js"))
}

func TestWriteDir(t *testing.T) {
	b, err := Build(Options{Minify: true})
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, b.WriteDir(dir))

	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	require.NoError(t, err)
	var manifest map[string]string
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Equal(t, b.Manifest(), manifest)

	for _, rev := range manifest {
		_, err := os.Stat(filepath.Join(dir, "assets", rev))
		assert.NoError(t, err, rev)
	}
}

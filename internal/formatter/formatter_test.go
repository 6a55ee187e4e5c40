package formatter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tektoncd/tekton-lsp/internal/parser"
)

func TestFormatIndentation(t *testing.T) {
	input := `apiVersion: tekton.dev/v1
kind: Task
metadata:
    name: git-clone
spec:
    steps:
    - name: clone
      image: alpine/git
`
	want := `apiVersion: tekton.dev/v1
kind: Task
metadata:
  name: git-clone
spec:
  steps:
    - name: clone
      image: alpine/git
`
	out, changed, err := FormatText(input)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, want, out)
}

func TestFormatKeepsOrderAndComments(t *testing.T) {
	input := `kind: Pipeline
apiVersion: tekton.dev/v1
# pipeline metadata
metadata:
    name: build # the name
spec:
    description: "quoted"
    tasks: []
`
	out, _, err := FormatText(input)
	require.NoError(t, err)
	assert.Contains(t, out, "kind: Pipeline\napiVersion: tekton.dev/v1\n")
	assert.Contains(t, out, "# pipeline metadata\nmetadata:\n")
	assert.Contains(t, out, "  name: build # the name\n")
	assert.Contains(t, out, `  description: "quoted"`)
}

func TestFormatIsIdempotent(t *testing.T) {
	inputs := []string{
		"apiVersion: tekton.dev/v1\nkind: Task\nmetadata:\n      name: x\nspec:\n      steps:\n      -   image: a\n          script: |\n            echo hi\n",
		"a: 1\n---\nb:\n    - c\n    - d\n",
	}
	for _, input := range inputs {
		once, _, err := FormatText(input)
		require.NoError(t, err)
		twice, changed, err := FormatText(once)
		require.NoError(t, err)
		assert.False(t, changed, "formatted output changes on a second pass:\n%s", once)
		assert.Equal(t, once, twice)
	}
}

func TestFormatMultipleDocuments(t *testing.T) {
	out, _, err := FormatText("a: 1\n---\nb:\n    c: 2\n")
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n---\nb:\n  c: 2\n", out)
}

func TestFormatAlreadyFormatted(t *testing.T) {
	input := "apiVersion: tekton.dev/v1\nkind: Task\nmetadata:\n  name: x\n"
	out, changed, err := FormatText(input)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, input, out)
}

func TestFormatRefusesParseErrors(t *testing.T) {
	input := "a: 1\nb: [unclosed\n"
	out, changed, err := FormatText(input)
	assert.ErrorIs(t, err, ErrParseErrors)
	assert.False(t, changed)
	assert.Equal(t, input, out)

	var buf bytes.Buffer
	assert.ErrorIs(t, Format(parser.Parse(input), &buf), ErrParseErrors)
	assert.Zero(t, buf.Len())
}

func TestFormatEmpty(t *testing.T) {
	out, changed, err := FormatText("")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, out)
}

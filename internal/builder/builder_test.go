package builder

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"
)

const pipeline = `apiVersion: tekton.dev/v1
kind: Pipeline
metadata:
  name: build
spec:
  tasks:
    - name: fetch
      taskRef:
        name: git-clone
    - name: lint
      taskRef:
        name: golangci
`

const task = `apiVersion: tekton.dev/v1
kind: Task
metadata:
  name: git-clone
spec:
  steps:
    - image: alpine/git
`

const run = `apiVersion: tekton.dev/v1
kind: PipelineRun
metadata:
  generateName: build-
spec:
  pipelineRef:
    name: build
`

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type doc struct {
	Kind     string `yaml:"kind"`
	Metadata struct {
		Name      string            `yaml:"name"`
		Namespace string            `yaml:"namespace"`
		Labels    map[string]string `yaml:"labels"`
	} `yaml:"metadata"`
}

func decode(t *testing.T, out string) []doc {
	t.Helper()
	dec := yaml.NewDecoder(strings.NewReader(out))
	var docs []doc
	for {
		var d doc
		if err := dec.Decode(&d); err != nil {
			break
		}
		docs = append(docs, d)
	}
	return docs
}

func TestBuildOrdersDependenciesFirst(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		write(t, dir, "run.yaml", run),
		write(t, dir, "pipeline.yaml", pipeline),
		write(t, dir, "task.yaml", task),
	}

	var buf bytes.Buffer
	require.NoError(t, NewBuilder(files, nil).Build(&buf))
	docs := decode(t, buf.String())
	require.Len(t, docs, 3)
	assert.Equal(t, "Task", docs[0].Kind)
	assert.Equal(t, "Pipeline", docs[1].Kind)
	assert.Equal(t, "PipelineRun", docs[2].Kind)
	assert.Contains(t, buf.String(), "\n---\n")
	assert.Contains(t, buf.String(), "\n    - name: fetch\n")
}

func TestBuildPipelineInPipeline(t *testing.T) {
	dir := t.TempDir()
	outer := "apiVersion: tekton.dev/v1\nkind: Pipeline\nmetadata:\n  name: release\nspec:\n  tasks:\n    - name: inner\n      pipelineRef:\n        name: build\n"
	files := []string{write(t, dir, "all.yaml", outer+"---\n"+pipeline)}

	var buf bytes.Buffer
	require.NoError(t, NewBuilder(files, nil).Build(&buf))
	docs := decode(t, buf.String())
	require.Len(t, docs, 2)
	assert.Equal(t, "build", docs[0].Metadata.Name)
	assert.Equal(t, "release", docs[1].Metadata.Name)
}

func TestBuildOverrides(t *testing.T) {
	dir := t.TempDir()
	files := []string{write(t, dir, "task.yaml", task)}

	var buf bytes.Buffer
	b := NewBuilder(files, map[string]string{NamespaceKey: "ci", "app": "demo"})
	require.NoError(t, b.Build(&buf))
	docs := decode(t, buf.String())
	require.Len(t, docs, 1)
	assert.Equal(t, "ci", docs[0].Metadata.Namespace)
	assert.Equal(t, map[string]string{"app": "demo"}, docs[0].Metadata.Labels)
}

func TestBuildErrors(t *testing.T) {
	dir := t.TempDir()
	inNS := func(ns string) string {
		return strings.Replace(task, "  name: git-clone\n", "  name: git-clone-"+ns+"\n  namespace: "+ns+"\n", 1)
	}

	err := NewBuilder([]string{write(t, dir, "a.yaml", inNS("a")), write(t, dir, "b.yaml", inNS("b"))}, nil).Build(&bytes.Buffer{})
	assert.ErrorContains(t, err, "multiple namespaces")

	// An override wins over conflicting namespaces.
	err = NewBuilder([]string{write(t, dir, "a.yaml", inNS("a")), write(t, dir, "b.yaml", inNS("b"))}, map[string]string{NamespaceKey: "ci"}).Build(&bytes.Buffer{})
	assert.NoError(t, err)

	err = NewBuilder([]string{write(t, dir, "t1.yaml", task), write(t, dir, "t2.yaml", task)}, nil).Build(&bytes.Buffer{})
	assert.ErrorContains(t, err, "duplicate Task \"git-clone\"")

	err = NewBuilder([]string{write(t, dir, "broken.yaml", "kind: Task\nmetadata: [\n")}, nil).Build(&bytes.Buffer{})
	assert.ErrorContains(t, err, "error parsing")

	err = NewBuilder([]string{filepath.Join(dir, "missing.yaml")}, nil).Build(&bytes.Buffer{})
	assert.Error(t, err)

	a := "apiVersion: tekton.dev/v1\nkind: Pipeline\nmetadata:\n  name: a\nspec:\n  tasks:\n    - name: x\n      pipelineRef:\n        name: b\n"
	b := "apiVersion: tekton.dev/v1\nkind: Pipeline\nmetadata:\n  name: b\nspec:\n  tasks:\n    - name: y\n      pipelineRef:\n        name: a\n"
	err = NewBuilder([]string{write(t, dir, "cycle.yaml", a+"---\n"+b)}, nil).Build(&bytes.Buffer{})
	assert.ErrorContains(t, err, "reference cycle")
}

package schema

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed tekton.cue
var defaultSchemaCUE string

// ProjectSchemaFile is the per-workspace constraint file merged over the
// built-in one.
const ProjectSchemaFile = ".tekton-lsp.cue"

// Schema holds the value constraints checked against scalar fields. The
// field layout itself lives in the Go tables of this package; CUE only adds
// restrictions on values (name formats, enums, durations).
type Schema struct {
	Context *cue.Context
	Value   cue.Value
	mu      sync.Mutex
}

func compile(ctx *cue.Context, src, filename string) (cue.Value, error) {
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to compile %s: %v", filename, err)
	}
	return v, nil
}

// DefaultSchema returns the built-in embedded schema.
func DefaultSchema() *Schema {
	ctx := cuecontext.New()
	v, err := compile(ctx, defaultSchemaCUE, "tekton.cue")
	if err != nil {
		panic(fmt.Sprintf("failed to parse default embedded schema: %v", err))
	}
	return &Schema{Context: ctx, Value: v}
}

// Merge unifies the CUE source in path into s.
func (s *Schema) Merge(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	other, err := compile(s.Context, string(content), path)
	if err != nil {
		return err
	}
	merged := s.Value.Unify(other)
	if err := merged.Err(); err != nil {
		return fmt.Errorf("schema %s conflicts with the built-in constraints: %v", path, err)
	}
	s.Value = merged
	return nil
}

// LoadFullSchema layers system and project constraint files over the
// built-in schema. Files that are missing or do not compile are skipped.
func LoadFullSchema(projectRoot string) (*Schema, []error) {
	s := DefaultSchema()
	var errs []error

	paths := []string{"/usr/share/tekton-lsp/tekton.cue"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".local/share/tekton-lsp/tekton.cue"))
	}
	if projectRoot != "" {
		paths = append(paths, filepath.Join(projectRoot, ProjectSchemaFile))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := s.Merge(path); err != nil {
			errs = append(errs, err)
		}
	}
	return s, errs
}

// HasConstraint reports whether a value constraint is registered for path.
func (s *Schema) HasConstraint(kind Kind, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(kind.String(), path).Exists() || s.lookup("common", path).Exists()
}

func (s *Schema) lookup(scope, path string) cue.Value {
	return s.Value.LookupPath(cue.MakePath(cue.Str(scope), cue.Str(path)))
}

// Check unifies value with the constraints registered for path under the
// kind's scope and the common scope. It returns nil when there is no
// constraint or the value satisfies it.
func (s *Schema) Check(kind Kind, path string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, scope := range []string{kind.String(), "common"} {
		c := s.lookup(scope, path)
		if !c.Exists() {
			continue
		}
		res := c.Unify(s.Context.Encode(value))
		if err := res.Validate(cue.Concrete(true)); err != nil {
			return err
		}
	}
	return nil
}

// Message renders a CUE validation error without its path prefix.
func Message(err error) string {
	list := errors.Errors(err)
	if len(list) == 0 {
		return err.Error()
	}
	format, args := list[0].Msg()
	return fmt.Sprintf(format, args...)
}

package tablespec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TableListFiles are tried in order when reading the table list.
var TableListFiles = []string{"tables.yaml", "tables.yml", "tables.json"}

// FSSource reads a specification from a file system.
type FSSource struct {
	fsys fs.FS
	name string
}

// NewFSSource returns a Source over fsys. name is used in error messages.
func NewFSSource(fsys fs.FS, name string) *FSSource {
	return &FSSource{fsys: fsys, name: name}
}

// Dir returns a Source reading from the directory at path.
func Dir(path string) *FSSource {
	return NewFSSource(os.DirFS(path), path)
}

// Tables reads and validates the table list.
func (s *FSSource) Tables() ([]Table, error) {
	for _, file := range TableListFiles {
		data, err := fs.ReadFile(s.fsys, file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %v", ErrInvalidSpec, s.name, file, err)
		}
		tables, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", s.name, file, err)
		}
		return tables, nil
	}
	return nil, fmt.Errorf("%w: %s: no table list (looked for %s)", ErrInvalidSpec, s.name, strings.Join(TableListFiles, ", "))
}

// CreateStatement reads <name>.sql, falling back to <name>.txt.
func (s *FSSource) CreateStatement(name string) (string, error) {
	if !ValidIdentifier(name) {
		return "", fmt.Errorf("%w: bad table name %q", ErrInvalidSpec, name)
	}
	for _, ext := range []string{".sql", ".txt"} {
		data, err := fs.ReadFile(s.fsys, name+ext)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: %s/%s%s: %v", ErrInvalidSpec, s.name, name, ext, err)
		}
		stmt := strings.TrimSpace(string(data))
		if stmt == "" {
			return "", fmt.Errorf("%w: %s/%s%s is empty", ErrInvalidSpec, s.name, name, ext)
		}
		return stmt, nil
	}
	return "", fmt.Errorf("%w: %s: no creation statement for table %q", ErrInvalidSpec, s.name, name)
}

// Parse decodes a YAML or JSON table list and validates it. Unknown keys
// are rejected.
func Parse(data []byte) ([]Table, error) {
	var tables []Table
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&tables); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if err := Validate(tables); err != nil {
		return nil, err
	}
	return tables, nil
}

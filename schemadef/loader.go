package schemadef

import (
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/graphmeta/neoschema"
)

// Load parses a schema definition from YAML and validates it.
func Load(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &neoschema.Error{
			Code:    neoschema.ErrCodeValidationFailed,
			Message: "parsing schema definition",
			Cause:   err,
		}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadFile reads and parses a schema definition file from disk.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &neoschema.Error{
			Code:    neoschema.ErrCodeValidationFailed,
			Message: "reading schema definition file",
			Cause:   err,
		}
	}
	return Load(data)
}

// LoadFS reads and parses a schema definition from a file system, typically
// an embed.FS carrying definitions compiled into the binary.
func LoadFS(fsys fs.FS, path string) (*Definition, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, &neoschema.Error{
			Code:    neoschema.ErrCodeValidationFailed,
			Message: "reading schema definition file",
			Cause:   err,
		}
	}
	return Load(data)
}

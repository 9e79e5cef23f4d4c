package instances

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader reads the instances.yaml file.
type Loader struct {
	filePath string
}

// NewLoader creates a new instances loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the instances file.
// ${VAR} references are expanded from the environment before parsing.
func (l *Loader) Load() (File, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return File{}, fmt.Errorf("failed to read instances file: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return File{}, fmt.Errorf("failed to parse instances yaml: %w", err)
	}

	return file, nil
}

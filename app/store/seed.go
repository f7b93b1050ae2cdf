package store

import (
	"context"
	"fmt"
	"os"

	log "github.com/go-pkgz/lgr"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML format for preloading tasks into an empty database,
// a flat list of task names:
//
//	tasks:
//	  - buy milk
//	  - walk the dog
type SeedFile struct {
	Tasks []string `yaml:"tasks" json:"tasks" jsonschema:"required,description=task names to insert into an empty database"`
}

// LoadSeed reads and validates a YAML seed file
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", path, err)
	}
	return &seed, nil
}

// Validate checks the seed file has at least one task
func (s *SeedFile) Validate() error {
	if len(s.Tasks) == 0 {
		return fmt.Errorf("at least one task is required")
	}
	return nil
}

// ApplySeed inserts seed tasks if and only if the table is empty, returning
// the number of tasks inserted. A non-empty table is left untouched.
func ApplySeed(ctx context.Context, conn *Conn, seed *SeedFile) (int, error) {
	count, err := conn.CountTasks(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		log.Printf("[DEBUG] seed skipped, %d tasks already stored", count)
		return 0, nil
	}

	for _, name := range seed.Tasks {
		if _, err := conn.CreateTask(ctx, name); err != nil {
			return 0, fmt.Errorf("failed to seed task %q: %w", name, err)
		}
	}
	return len(seed.Tasks), nil
}

// SeedSchema generates a JSON schema for the seed file format
func SeedSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&SeedFile{})
}

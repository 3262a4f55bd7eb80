package bandit

import (
	"encoding/json"
	"os"
)

// FilePersister stores the router state as a single JSON file, matching
// spec.md §6's persistent-router-state-file format.
type FilePersister struct {
	Path string
}

// NewFilePersister builds a FilePersister rooted at path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

func (p *FilePersister) Load() (*StatePayload, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var payload StatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil // malformed state is treated as no prior state, not a fatal error
	}
	return &payload, nil
}

func (p *FilePersister) Save(payload *StatePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return os.WriteFile(p.Path, data, 0o644)
}

package filestore

import (
	"errors"
	"fmt"
	"os"

	"github.com/andrej220/configzz/internal/errs"
	"github.com/andrej220/configzz/pkg/config/configstore"
	"gopkg.in/yaml.v3"
)

var _ configstore.ConfigStore = (*FileStore)(nil)

// ErrEmpty is returned by Load for a file with no content.
var ErrEmpty = errors.New("document is empty")

// FileStore reads a YAML document from disk.
type FileStore struct {
	Path string
}

func New(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the file and decodes it into out. A read failure is returned
// as is; a document that does not decode into out is ErrMalformedInput.
func (f *FileStore) Load(out any) error {
	if out == nil {
		return fmt.Errorf("load: output parameter must not be nil")
	}

	bytes, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("load: failed to read file %s: %w", f.Path, err)
	}

	if len(bytes) == 0 {
		return fmt.Errorf("load: %s: %w", f.Path, ErrEmpty)
	}

	if err := yaml.Unmarshal(bytes, out); err != nil {
		return fmt.Errorf("%w: failed to parse YAML in %s: %v", errs.ErrMalformedInput, f.Path, err)
	}

	return nil
}

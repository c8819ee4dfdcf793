// Package inventory loads the host list and resolves each host's SSH
// credentials against the run default.
package inventory

import (
	"errors"
	"fmt"

	"github.com/andrej220/configzz/internal/errs"
	"github.com/andrej220/configzz/pkg/config"
	"github.com/andrej220/configzz/pkg/config/filestore"
	"github.com/andrej220/configzz/pkg/executor"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrNoCredentials means neither the host nor the run config has an ssh block.
	ErrNoCredentials = errors.New("no ssh settings")
	// ErrIncompleteCredentials means the ssh block cannot authenticate.
	ErrIncompleteCredentials = errors.New("no ssh credentials")
)

type Host struct {
	Name string              `yaml:"name" validate:"required"`
	FQDN string              `yaml:"fqdn" validate:"required"`
	SSH  *config.Credentials `yaml:"ssh,omitempty"`
}

var validate = validator.New()

// Load reads the inventory document at path. An empty document has no
// hosts; a document that is not a list of host records is ErrMalformedInput.
func Load(path string) ([]Host, error) {
	var hosts []Host
	if err := filestore.New(path).Load(&hosts); err != nil {
		if errors.Is(err, filestore.ErrEmpty) {
			return nil, nil
		}
		return nil, fmt.Errorf("inventory: %w", err)
	}
	for i := range hosts {
		if err := validate.Struct(&hosts[i]); err != nil {
			return nil, fmt.Errorf("%w: inventory host #%d: %v", errs.ErrMalformedInput, i+1, err)
		}
	}
	return hosts, nil
}

// Credentials returns the host's own ssh block, or defaults when it has none.
func (h Host) Credentials(defaults *config.Credentials) (*config.Credentials, error) {
	creds := h.SSH
	if creds == nil {
		creds = defaults
	}
	if creds == nil {
		return nil, ErrNoCredentials
	}
	if creds.Username == "" || !creds.HasSecret() {
		return nil, ErrIncompleteCredentials
	}
	return creds, nil
}

// Target resolves the connection parameters for h.
func (h Host) Target(defaults *config.Credentials) (executor.Target, error) {
	creds, err := h.Credentials(defaults)
	if err != nil {
		return executor.Target{}, err
	}
	return executor.Target{
		Host:           h.FQDN,
		Port:           creds.Port,
		User:           creds.Username,
		Password:       creds.Password,
		KeyPath:        creds.Key,
		Passphrase:     creds.Passphrase,
		KnownHostsPath: creds.KnownHosts,
		Timeout:        creds.Timeout,
		ConnectRetries: creds.ConnectRetries,
	}, nil
}

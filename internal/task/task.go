// Package task reads the task document: an ordered sequence of single-key
// mappings from a resource kind to that kind's configuration.
//
// Only the shape is checked here. Whether a state value or a path makes
// sense is decided by the reconciler that receives the config.
package task

import (
	"fmt"
	"os"
	"strings"

	"github.com/andrej220/configzz/internal/errs"
	"gopkg.in/yaml.v3"
)

type Kind string

const (
	KindPackage Kind = "package"
	KindService Kind = "service"
	KindFile    Kind = "file"
)

// Kinds lists the closed set of resource kinds in dispatch order.
var Kinds = []Kind{KindPackage, KindService, KindFile}

func (k Kind) Valid() bool {
	switch k {
	case KindPackage, KindService, KindFile:
		return true
	}
	return false
}

// Desired states as written in task documents.
const (
	StatePresent   = "present"
	StateAbsent    = "absent"
	StateRunning   = "running"
	StateStopped   = "stopped"
	StateRestarted = "restarted"
)

type PackageConfig struct {
	Names []string `yaml:"names" validate:"required,min=1,dive,required"`
	State string   `yaml:"state" validate:"oneof=present absent"`
}

// UnmarshalYAML accepts the package list under "names" or "name", the latter
// either as a single string or as a sequence.
func (p *PackageConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Names Names  `yaml:"names"`
		Name  Names  `yaml:"name"`
		State string `yaml:"state"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	p.Names = append(append([]string{}, raw.Names...), raw.Name...)
	p.State = raw.State
	return nil
}

// Names is a list of strings that may also be written as one scalar.
type Names []string

func (n *Names) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var name string
		if err := value.Decode(&name); err != nil {
			return err
		}
		*n = Names{name}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		*n = names
		return nil
	default:
		return fmt.Errorf("line %d: expected a name or a list of names", value.Line)
	}
}

type ServiceConfig struct {
	Name  string `yaml:"name" validate:"required"`
	State string `yaml:"state" validate:"oneof=running stopped restarted"`
}

// FileConfig fields other than Dest and State are optional; an empty string
// means "not set".
type FileConfig struct {
	Dest  string `yaml:"dest" validate:"required"`
	State string `yaml:"state" validate:"oneof=present absent"`
	Src   string `yaml:"src,omitempty"`
	Owner string `yaml:"owner,omitempty"`
	Group string `yaml:"group,omitempty"`
	Mode  string `yaml:"mode,omitempty"`
}

// Task is one entry of the task document. Exactly one of the config
// pointers is set, the one matching Kind.
type Task struct {
	Kind    Kind
	Line    int
	Package *PackageConfig
	Service *ServiceConfig
	File    *FileConfig
}

func (t *Task) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: task must be a mapping with one resource kind", value.Line)
	}
	if len(value.Content) != 2 {
		keys := make([]string, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			keys = append(keys, value.Content[i].Value)
		}
		return fmt.Errorf("line %d: task must have exactly one resource kind, got [%s]", value.Line, strings.Join(keys, ", "))
	}

	key, body := value.Content[0], value.Content[1]
	t.Kind = Kind(key.Value)
	t.Line = key.Line
	if body.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: %s config must be a mapping", body.Line, key.Value)
	}

	if !t.Kind.Valid() {
		return fmt.Errorf("line %d: unknown resource kind %q", key.Line, key.Value)
	}

	switch t.Kind {
	case KindPackage:
		t.Package = &PackageConfig{}
		return body.Decode(t.Package)
	case KindService:
		t.Service = &ServiceConfig{}
		return body.Decode(t.Service)
	default:
		t.File = &FileConfig{}
		return body.Decode(t.File)
	}
}

// Config returns the kind-specific configuration.
func (t Task) Config() any {
	switch t.Kind {
	case KindPackage:
		return t.Package
	case KindService:
		return t.Service
	case KindFile:
		return t.File
	}
	return nil
}

func (t Task) String() string {
	switch t.Kind {
	case KindPackage:
		if t.Package != nil {
			return fmt.Sprintf("package %s -> %s", strings.Join(t.Package.Names, ","), t.Package.State)
		}
	case KindService:
		if t.Service != nil {
			return fmt.Sprintf("service %s -> %s", t.Service.Name, t.Service.State)
		}
	case KindFile:
		if t.File != nil {
			return fmt.Sprintf("file %s -> %s", t.File.Dest, t.File.State)
		}
	}
	return string(t.Kind)
}

// ReadTasks loads and parses the task document at path.
func ReadTasks(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	tasks, err := ParseTasks(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tasks, nil
}

// ParseTasks parses a task document. Any shape error is ErrMalformedInput.
// An empty document yields no tasks.
func ParseTasks(data []byte) ([]Task, error) {
	var tasks []Task
	if err := yaml.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedInput, err)
	}
	return tasks, nil
}

// Package report persists the run summary to a file, as JSON or YAML
// depending on the file extension.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andrej220/configzz/internal/runner"
	"gopkg.in/yaml.v3"
)

type Serializer interface {
	Marshal(data any) ([]byte, error)
}

type Writer interface {
	Write(filename string, data []byte) error
}

type JSONSerializer struct {
	Prefix, Indent string
}

func (s JSONSerializer) Marshal(data any) ([]byte, error) {
	return json.MarshalIndent(data, s.Prefix, s.Indent)
}

type YAMLSerializer struct{}

func (YAMLSerializer) Marshal(data any) ([]byte, error) {
	return yaml.Marshal(data)
}

// SerializerFor picks YAML for .yaml and .yml files and JSON otherwise.
func SerializerFor(filename string) Serializer {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return YAMLSerializer{}
	default:
		return JSONSerializer{Indent: "    "}
	}
}

// FileWriter writes through a temp file and a rename, so a reader never
// sees a partial report.
type FileWriter struct{}

func (FileWriter) Write(filename string, data []byte) error {
	if filename == "" {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filename)
}

type Host struct {
	Name    string `json:"name" yaml:"name"`
	Status  string `json:"status" yaml:"status"`
	OK      int    `json:"ok" yaml:"ok"`
	Changed int    `json:"changed" yaml:"changed"`
	Failed  int    `json:"failed" yaml:"failed"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Document is the serialized form of a run summary.
type Document struct {
	RunID string `json:"run_id" yaml:"run_id"`
	Hosts []Host `json:"hosts" yaml:"hosts"`
}

func NewDocument(summary runner.Summary) Document {
	doc := Document{RunID: summary.RunID.String(), Hosts: make([]Host, 0, len(summary.Hosts))}
	for _, hs := range summary.Hosts {
		h := Host{
			Name:    hs.Host,
			Status:  string(hs.Status),
			OK:      hs.OK,
			Changed: hs.Changed,
			Failed:  hs.Failed,
		}
		if hs.Err != nil {
			h.Error = hs.Err.Error()
		}
		doc.Hosts = append(doc.Hosts, h)
	}
	return doc
}

// Write serializes summary and hands it to writer under filename.
func Write(summary runner.Summary, filename string, serializer Serializer, writer Writer) error {
	if filename == "" {
		return fmt.Errorf("report: %w", os.ErrInvalid)
	}
	bytes, err := serializer.Marshal(NewDocument(summary))
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	if err := writer.Write(filename, bytes); err != nil {
		return fmt.Errorf("report: failed to write %s: %w", filename, err)
	}
	return nil
}

// WriteFile writes summary to filename in the format its extension implies.
func WriteFile(summary runner.Summary, filename string) error {
	return Write(summary, filename, SerializerFor(filename), FileWriter{})
}

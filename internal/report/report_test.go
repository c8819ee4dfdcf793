package report_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/andrej220/configzz/internal/inventory"
	"github.com/andrej220/configzz/internal/report"
	"github.com/andrej220/configzz/internal/runner"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type MockSerializer struct {
	Bytes []byte
	Err   error
}

func (s MockSerializer) Marshal(data any) ([]byte, error) {
	return s.Bytes, s.Err
}

type MockWriter struct {
	Data map[string][]byte
	Err  error
}

func (w *MockWriter) Write(filename string, data []byte) error {
	if w.Data == nil {
		w.Data = make(map[string][]byte)
	}
	w.Data[filename] = data
	return w.Err
}

var runID = uuid.MustParse("6f1c1e2a-3b4d-4c5e-8f90-a1b2c3d4e5f6")

func sampleSummary() runner.Summary {
	return runner.Summary{
		RunID: runID,
		Hosts: []runner.HostSummary{
			{Host: "web1", Status: runner.StatusDone, OK: 2, Changed: 1, Failed: 1},
			{Host: "web2", Status: runner.StatusSkipped, Err: inventory.ErrNoCredentials},
		},
	}
}

func TestWrite(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		serializer  report.Serializer
		writer      *MockWriter
		expectedErr bool
	}{
		{"valid input", "run.json", MockSerializer{Bytes: []byte("{}")}, &MockWriter{}, false},
		{"empty filename", "", MockSerializer{Bytes: []byte("{}")}, &MockWriter{}, true},
		{"serializer error", "run.json", MockSerializer{Err: errors.New("serialization failed")}, &MockWriter{}, true},
		{"writer error", "run.json", MockSerializer{Bytes: []byte("{}")}, &MockWriter{Err: errors.New("write failed")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := report.Write(sampleSummary(), tt.filename, tt.serializer, tt.writer)
			if tt.expectedErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "{}", string(tt.writer.Data[tt.filename]))
		})
	}
}

func TestNewDocument(t *testing.T) {
	doc := report.NewDocument(sampleSummary())
	assert.Equal(t, report.Document{
		RunID: runID.String(),
		Hosts: []report.Host{
			{Name: "web1", Status: "done", OK: 2, Changed: 1, Failed: 1},
			{Name: "web2", Status: "skipped", Error: "no ssh settings"},
		},
	}, doc)
}

func TestSerializerFor(t *testing.T) {
	assert.IsType(t, report.YAMLSerializer{}, report.SerializerFor("out/run.yaml"))
	assert.IsType(t, report.YAMLSerializer{}, report.SerializerFor("RUN.YML"))
	assert.IsType(t, report.JSONSerializer{}, report.SerializerFor("run.json"))
	assert.IsType(t, report.JSONSerializer{}, report.SerializerFor("run"))
}

func TestWriteFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.json")
	require.NoError(t, report.WriteFile(sampleSummary(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc report.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, report.NewDocument(sampleSummary()), doc)

	_, err = os.Stat(path + ".tmp")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, report.WriteFile(sampleSummary(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc report.Document
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, runID.String(), doc.RunID)
	assert.Len(t, doc.Hosts, 2)
}

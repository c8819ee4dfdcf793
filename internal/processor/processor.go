// Package processor normalizes remote command output and turns it into
// observed resource state.
//
// Output lines go through a chain of named processors first (trim, drop_empty)
// and are then matched by the parsers in parsers.go. The matched patterns are
// tied to dpkg, the systemd "service" wrapper and a POSIX shell.
package processor

import (
	"fmt"
	"strings"
)

const (
	ProcessorTypeTrim      string = "trim"
	ProcessorTypeDropEmpty string = "drop_empty"
)

// Processor defines the interface for processing output lines.
type Processor interface {
	Process([]string) ([]string, error)
	Name() string
}

// ProcessorChain manages a collection of processors and applies them in sequence.
type ProcessorChain struct {
	processors map[string]Processor
}

func NewProcessorChain() *ProcessorChain {
	pc := &ProcessorChain{
		processors: make(map[string]Processor),
	}
	pc.registerDefaults()
	return pc
}

func (pc *ProcessorChain) registerDefaults() {
	pc.Register(&TrimProcessor{})
	pc.Register(&DropEmptyProcessor{})
}

// Register adds a processor to the chain.
func (pc *ProcessorChain) Register(p Processor) {
	pc.processors[p.Name()] = p
}

// Process applies the named processors to lines in order.
func (pc *ProcessorChain) Process(lines []string, processorNames ...string) ([]string, error) {
	for _, name := range processorNames {
		if _, exists := pc.processors[name]; !exists {
			return nil, fmt.Errorf("processor %q not registered", name)
		}
	}
	if len(lines) == 0 {
		return lines, nil
	}
	result := lines
	for _, name := range processorNames {
		var err error
		result, err = pc.processors[name].Process(result)
		if err != nil {
			return nil, fmt.Errorf("%s processor failed: %w", name, err)
		}
	}
	return result, nil
}

// TrimProcessor trims whitespace from each line in the input.
type TrimProcessor struct{}

func (p *TrimProcessor) Name() string { return ProcessorTypeTrim }
func (p *TrimProcessor) Process(lines []string) ([]string, error) {
	trimmed := make([]string, len(lines))
	for i, line := range lines {
		trimmed[i] = strings.TrimSpace(line)
	}
	return trimmed, nil
}

// DropEmptyProcessor removes blank lines.
type DropEmptyProcessor struct{}

func (p *DropEmptyProcessor) Name() string { return ProcessorTypeDropEmpty }
func (p *DropEmptyProcessor) Process(lines []string) ([]string, error) {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return kept, nil
}

var defaultChain = NewProcessorChain()

// Normalize trims every line and drops blank ones.
func Normalize(lines []string) []string {
	out, err := defaultChain.Process(lines, ProcessorTypeTrim, ProcessorTypeDropEmpty)
	if err != nil {
		return lines
	}
	return out
}

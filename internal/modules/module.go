// Package modules holds the three resource reconcilers and the fixed table
// that dispatches a task to one of them.
//
// A reconciler queries the observed state over the host's channel, compares
// it with the desired state and issues only the commands needed to converge.
// Commands that run but write to stderr are reported as SoftFailed outcomes
// and never returned as errors; returned errors are always classified with
// the errs package.
package modules

import (
	"context"
	"fmt"

	"github.com/andrej220/configzz/internal/errs"
	"github.com/andrej220/configzz/internal/lg"
	"github.com/andrej220/configzz/internal/processor"
	"github.com/andrej220/configzz/internal/task"
	"github.com/andrej220/configzz/pkg/executor"
)

type OutcomeKind int

const (
	NoOp OutcomeKind = iota
	Changed
	SoftFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case Changed:
		return "changed"
	case SoftFailed:
		return "failed"
	default:
		return "ok"
	}
}

// Outcome is the result for one unit of work: one package name, one service,
// or one file sub-operation.
type Outcome struct {
	Kind    OutcomeKind
	Subject string
	Detail  string
}

func noop(subject, format string, args ...any) Outcome {
	return Outcome{Kind: NoOp, Subject: subject, Detail: fmt.Sprintf(format, args...)}
}

func changed(subject, format string, args ...any) Outcome {
	return Outcome{Kind: Changed, Subject: subject, Detail: fmt.Sprintf(format, args...)}
}

func softFailed(subject, format string, args ...any) Outcome {
	return Outcome{Kind: SoftFailed, Subject: subject, Detail: fmt.Sprintf(format, args...)}
}

// Report collects the outcomes of one task in execution order.
type Report struct {
	Kind     task.Kind
	Outcomes []Outcome
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Result folds the outcomes: any soft failure wins, then any change.
// A report without outcomes is a no-op.
func (r Report) Result() OutcomeKind {
	result := NoOp
	for _, o := range r.Outcomes {
		if o.Kind > result {
			result = o.Kind
		}
	}
	return result
}

// Remote is the part of the host channel the reconcilers drive.
type Remote interface {
	executor.Executor
	executor.Copier
}

// Module reconciles one resource kind.
type Module interface {
	Apply(ctx context.Context, t task.Task) (Report, error)
}

// Registry is the fixed kind -> reconciler table for one host channel.
// It is read-only after construction.
type Registry struct {
	modules map[task.Kind]Module
}

// NewRegistry binds the three reconcilers to the same channel.
func NewRegistry(remote Remote, logger lg.Logger) *Registry {
	return &Registry{
		modules: map[task.Kind]Module{
			task.KindPackage: NewPackageModule(remote, logger),
			task.KindService: NewServiceModule(remote, logger),
			task.KindFile:    NewFileModule(remote, logger),
		},
	}
}

func (r *Registry) Dispatch(ctx context.Context, t task.Task) (Report, error) {
	m, ok := r.modules[t.Kind]
	if !ok {
		return Report{Kind: t.Kind}, fmt.Errorf("%w: no module for resource kind %q", errs.ErrInvalidTaskConfiguration, t.Kind)
	}
	return m.Apply(ctx, t)
}

// run executes a mutating command and turns its stderr into an outcome.
func run(ctx context.Context, remote Remote, logger lg.Logger, subject, command, done string) (Outcome, error) {
	stdout, stderr, err := remote.Run(ctx, command)
	if err != nil {
		return Outcome{}, err
	}
	logger.Debug("command finished",
		lg.String("command", command),
		lg.Strings("stdout", stdout),
		lg.Strings("stderr", stderr))
	if hasErrorOutput(stderr) {
		return softFailed(subject, "%s failed: %s", done, firstLine(stderr)), nil
	}
	return changed(subject, "%s", done), nil
}

func hasErrorOutput(stderr []string) bool {
	return processor.HasErrorOutput(stderr)
}

func firstLine(lines []string) string {
	normalized := processor.Normalize(lines)
	if len(normalized) == 0 {
		return ""
	}
	return normalized[0]
}

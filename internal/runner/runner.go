// Package runner drives the reconciliation of every host in inventory
// order: one channel per host, tasks in declared order, and a recap at the
// end of the run.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/andrej220/configzz/internal/errs"
	"github.com/andrej220/configzz/internal/inventory"
	"github.com/andrej220/configzz/internal/lg"
	"github.com/andrej220/configzz/internal/modules"
	"github.com/andrej220/configzz/internal/task"
	"github.com/andrej220/configzz/pkg/config"
	"github.com/andrej220/configzz/pkg/executor"
	"github.com/google/uuid"
)

type HostStatus string

const (
	StatusDone        HostStatus = "done"
	StatusSkipped     HostStatus = "skipped"
	StatusUnreachable HostStatus = "unreachable"
	StatusAborted     HostStatus = "aborted"
)

// HostSummary counts the outcomes recorded for one host.
type HostSummary struct {
	Host    string
	Status  HostStatus
	OK      int
	Changed int
	Failed  int
	Err     error
}

func (h *HostSummary) record(report modules.Report) {
	for _, o := range report.Outcomes {
		switch o.Kind {
		case modules.Changed:
			h.Changed++
		case modules.SoftFailed:
			h.Failed++
		default:
			h.OK++
		}
	}
}

type Summary struct {
	RunID uuid.UUID
	Hosts []HostSummary
}

// Runner applies a task list to hosts one after another.
type Runner struct {
	dialer   executor.Dialer
	defaults *config.Credentials
	logger   lg.Logger
}

// New returns a Runner that opens channels with dialer. defaults is the
// credential block for hosts without their own; it may be nil.
func New(dialer executor.Dialer, defaults *config.Credentials, logger lg.Logger) *Runner {
	return &Runner{dialer: dialer, defaults: defaults, logger: logger}
}

// Run processes hosts in order. Host-scoped failures end only that host.
// Any other error, including cancellation of ctx, stops the run and is
// returned together with the summary so far.
func (r *Runner) Run(ctx context.Context, hosts []inventory.Host, tasks []task.Task) (Summary, error) {
	summary := Summary{RunID: uuid.New()}
	logger := r.logger.With(lg.String("run_id", summary.RunID.String()))
	logger.Info("run started", lg.Int("hosts", len(hosts)), lg.Int("tasks", len(tasks)))

	for _, host := range hosts {
		if err := ctx.Err(); err != nil {
			recap(logger, summary)
			return summary, err
		}
		hs, err := r.runHost(ctx, logger.With(lg.String("host", host.Name)), host, tasks)
		summary.Hosts = append(summary.Hosts, hs)
		if err != nil {
			logger.Error("run aborted", lg.String("host", host.Name), lg.Err(err))
			recap(logger, summary)
			return summary, err
		}
	}

	recap(logger, summary)
	return summary, nil
}

func (r *Runner) runHost(ctx context.Context, logger lg.Logger, host inventory.Host, tasks []task.Task) (HostSummary, error) {
	hs := HostSummary{Host: host.Name, Status: StatusSkipped}

	target, err := host.Target(r.defaults)
	switch {
	case errors.Is(err, inventory.ErrNoCredentials):
		logger.Warn("no ssh settings found, skipping host")
		hs.Err = err
		return hs, nil
	case err != nil:
		logger.Error("no ssh credentials found, skipping host", lg.Err(err))
		hs.Err = err
		return hs, nil
	}

	ch := r.dialer.NewChannel(target)
	if err := ch.Connect(ctx); err != nil {
		ch.Close()
		if ctx.Err() != nil {
			return hs, ctx.Err()
		}
		logger.Error("cannot connect, skipping host", lg.String("fqdn", host.FQDN), lg.Err(err))
		hs.Status = StatusUnreachable
		hs.Err = err
		return hs, nil
	}
	defer func() {
		if err := ch.Close(); err != nil {
			logger.Warn("close channel", lg.Err(err))
		}
	}()
	logger.Info("connected",
		lg.String("fqdn", host.FQDN),
		lg.Bool("host_key_checked", target.KnownHostsPath != ""))
	start := time.Now()

	registry := modules.NewRegistry(ch, logger)
	for i, t := range tasks {
		taskLogger := logger.With(
			lg.Int("task", i+1),
			lg.Int("line", t.Line),
			lg.String("kind", string(t.Kind)))
		taskLogger.Info("running task", lg.String("desired", t.String()))
		taskLogger.Debug("task config", lg.Any("config", t.Config()))

		report, err := registry.Dispatch(ctx, t)
		hs.record(report)
		logOutcomes(taskLogger, report)
		if err == nil {
			taskLogger.Info("task finished", lg.String("result", report.Result().String()))
			continue
		}
		if ctx.Err() != nil || !errs.HostScoped(err) {
			hs.Status = StatusAborted
			hs.Err = err
			return hs, err
		}
		taskLogger.Error("aborting host",
			lg.String("class", errs.Classify(err).String()),
			lg.Err(err))
		hs.Status = StatusAborted
		hs.Err = err
		return hs, nil
	}

	hs.Status = StatusDone
	logger.Info("host finished", lg.Duration("elapsed", time.Since(start)))
	return hs, nil
}

func logOutcomes(logger lg.Logger, report modules.Report) {
	for _, o := range report.Outcomes {
		fields := []lg.Field{
			lg.String("subject", o.Subject),
			lg.String("outcome", o.Kind.String()),
			lg.String("detail", o.Detail),
		}
		if o.Kind == modules.SoftFailed {
			logger.Error("task step failed", fields...)
			continue
		}
		logger.Info("task step", fields...)
	}
}

func recap(logger lg.Logger, summary Summary) {
	for _, hs := range summary.Hosts {
		logger.Info("recap",
			lg.String("host", hs.Host),
			lg.String("status", string(hs.Status)),
			lg.Int("ok", hs.OK),
			lg.Int("changed", hs.Changed),
			lg.Int("failed", hs.Failed))
	}
}

package modules

import (
	"context"

	"github.com/andrej220/configzz/internal/lg"
	"github.com/andrej220/configzz/internal/processor"
	"github.com/andrej220/configzz/internal/task"
	"github.com/andrej220/configzz/pkg/executor"
)

// ServiceModule converges a service to running, stopped or restarted.
type ServiceModule struct {
	remote Remote
	logger lg.Logger
}

func NewServiceModule(remote Remote, logger lg.Logger) *ServiceModule {
	return &ServiceModule{remote: remote, logger: logger.With(lg.String("module", string(task.KindService)))}
}

func serviceCommand(name, action string) string {
	return "service " + executor.Quote(name) + " " + action
}

// Apply decides the transition in a fixed order, first match wins:
//
//	absent                   -> nothing, whatever was asked
//	running  + stopped       -> stop
//	stopped  + running       -> start
//	anything + restarted     -> restart
//	otherwise                -> nothing, also when the status was not recognized
func (m *ServiceModule) Apply(ctx context.Context, t task.Task) (Report, error) {
	report := Report{Kind: task.KindService}
	cfg := t.Service
	if err := validateConfig(string(task.KindService), cfg); err != nil {
		return report, err
	}

	observed, err := m.observe(ctx, cfg.Name)
	if err != nil {
		return report, err
	}

	var outcome Outcome
	switch {
	case observed == processor.ServiceAbsent:
		outcome = softFailed(cfg.Name, "invalid service name %s", cfg.Name)
	case observed == processor.ServiceRunning && cfg.State == task.StateStopped:
		outcome, err = run(ctx, m.remote, m.logger, cfg.Name, serviceCommand(cfg.Name, "stop"), "stop")
	case observed == processor.ServiceStopped && cfg.State == task.StateRunning:
		outcome, err = run(ctx, m.remote, m.logger, cfg.Name, serviceCommand(cfg.Name, "start"), "start")
	case cfg.State == task.StateRestarted:
		outcome, err = run(ctx, m.remote, m.logger, cfg.Name, serviceCommand(cfg.Name, "restart"), "restart")
	case observed == processor.ServiceError:
		outcome = noop(cfg.Name, "status output not recognized, leaving it as is")
	default:
		outcome = noop(cfg.Name, "already %s", cfg.State)
	}
	if err != nil {
		return report, err
	}
	report.add(outcome)
	return report, nil
}

func (m *ServiceModule) observe(ctx context.Context, name string) (processor.ServiceState, error) {
	stdout, stderr, err := m.remote.Run(ctx, serviceCommand(name, "status"))
	if err != nil {
		return processor.ServiceError, err
	}
	state := processor.ServiceStatus(name, stdout, stderr)
	m.logger.Debug("service status",
		lg.String("service", name),
		lg.String("observed", string(state)),
		lg.Strings("stdout", stdout),
		lg.Strings("stderr", stderr))
	if state == processor.ServiceError {
		m.logger.Warn("service status not recognized", lg.String("service", name))
	}
	return state, nil
}

package modules

import (
	"context"

	"github.com/andrej220/configzz/internal/lg"
	"github.com/andrej220/configzz/internal/processor"
	"github.com/andrej220/configzz/internal/task"
	"github.com/andrej220/configzz/pkg/executor"
)

// PackageModule converges dpkg packages to present or absent.
type PackageModule struct {
	remote Remote
	logger lg.Logger
}

func NewPackageModule(remote Remote, logger lg.Logger) *PackageModule {
	return &PackageModule{remote: remote, logger: logger.With(lg.String("module", string(task.KindPackage)))}
}

func packageQueryCommand(name string) string {
	return "dpkg-query -W -f='${Status}' " + executor.Quote(name) + " | grep -c 'ok installed'"
}

func packageInstallCommand(name string) string {
	return "export DEBIAN_FRONTEND=noninteractive && apt-get update && apt-get -yq install " + executor.Quote(name)
}

func packageRemoveCommand(name string) string {
	return "export DEBIAN_FRONTEND=noninteractive && apt-get -yq remove " + executor.Quote(name)
}

// Apply walks the names in order. Each name is queried on its own and a
// failed install or remove does not stop the remaining names.
func (m *PackageModule) Apply(ctx context.Context, t task.Task) (Report, error) {
	report := Report{Kind: task.KindPackage}
	cfg := t.Package
	if err := validateConfig(string(task.KindPackage), cfg); err != nil {
		return report, err
	}

	for _, name := range cfg.Names {
		installed, err := m.installed(ctx, name)
		if err != nil {
			return report, err
		}

		var outcome Outcome
		switch {
		case installed && cfg.State == task.StateAbsent:
			outcome, err = run(ctx, m.remote, m.logger, name, packageRemoveCommand(name), "remove")
		case !installed && cfg.State == task.StatePresent:
			outcome, err = run(ctx, m.remote, m.logger, name, packageInstallCommand(name), "install")
		default:
			outcome = noop(name, "already %s", cfg.State)
		}
		if err != nil {
			return report, err
		}
		report.add(outcome)
	}
	return report, nil
}

func (m *PackageModule) installed(ctx context.Context, name string) (bool, error) {
	stdout, stderr, err := m.remote.Run(ctx, packageQueryCommand(name))
	if err != nil {
		return false, err
	}
	m.logger.Debug("package query",
		lg.String("package", name),
		lg.Strings("stdout", stdout),
		lg.Strings("stderr", stderr))
	return processor.PackageInstalled(stdout), nil
}

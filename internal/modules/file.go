package modules

import (
	"context"
	"fmt"
	"os"

	"github.com/andrej220/configzz/internal/errs"
	"github.com/andrej220/configzz/internal/lg"
	"github.com/andrej220/configzz/internal/processor"
	"github.com/andrej220/configzz/internal/task"
	"github.com/andrej220/configzz/pkg/executor"
)

// FileModule converges a remote path: removes it, or uploads it and sets
// its ownership and mode.
type FileModule struct {
	remote Remote
	logger lg.Logger
}

func NewFileModule(remote Remote, logger lg.Logger) *FileModule {
	return &FileModule{remote: remote, logger: logger.With(lg.String("module", string(task.KindFile)))}
}

func fileExistsCommand(path string) string {
	return fmt.Sprintf("if [ -f %s ]; then echo %q; else echo %q; fi",
		executor.Quote(path), processor.FileExistsMarker, processor.FileMissingMarker)
}

func (m *FileModule) Apply(ctx context.Context, t task.Task) (Report, error) {
	report := Report{Kind: task.KindFile}
	cfg := t.File
	if err := validateConfig(string(task.KindFile), cfg); err != nil {
		return report, err
	}
	if cfg.State == task.StateAbsent {
		return m.absent(ctx, cfg, report)
	}
	return m.present(ctx, cfg, report)
}

func (m *FileModule) absent(ctx context.Context, cfg *task.FileConfig, report Report) (Report, error) {
	stdout, stderr, err := m.remote.Run(ctx, fileExistsCommand(cfg.Dest))
	if err != nil {
		return report, err
	}
	m.logger.Debug("file probe",
		lg.String("dest", cfg.Dest),
		lg.Strings("stdout", stdout),
		lg.Strings("stderr", stderr))

	switch processor.FileExistence(stdout) {
	case processor.FileMissing:
		report.add(noop(cfg.Dest, "already absent"))
	case processor.FileExists:
		outcome, err := run(ctx, m.remote, m.logger, cfg.Dest, executor.JoinCommand("rm --", cfg.Dest), "remove")
		if err != nil {
			return report, err
		}
		report.add(outcome)
	default:
		report.add(softFailed(cfg.Dest, "cannot tell if file exists, probe printed %q", firstLine(stdout)))
	}
	return report, nil
}

// present runs up to four independent steps: upload, chown, chgrp, chmod.
// A soft failure in one step does not skip the next.
func (m *FileModule) present(ctx context.Context, cfg *task.FileConfig, report Report) (Report, error) {
	if cfg.Src != "" {
		if err := checkSource(cfg.Src); err != nil {
			return report, err
		}
		if err := m.remote.CopyFile(ctx, cfg.Src, cfg.Dest); err != nil {
			return report, err
		}
		m.logger.Debug("file copied", lg.String("src", cfg.Src), lg.String("dest", cfg.Dest))
		report.add(changed(cfg.Dest, "copy from %s", cfg.Src))
	}

	steps := []struct {
		value   string
		command string
		done    string
	}{
		{cfg.Owner, "chown --", "owner " + cfg.Owner},
		{cfg.Group, "chgrp --", "group " + cfg.Group},
		{cfg.Mode, "chmod --", "mode " + cfg.Mode},
	}
	for _, step := range steps {
		if step.value == "" {
			continue
		}
		outcome, err := run(ctx, m.remote, m.logger, cfg.Dest, executor.JoinCommand(step.command, step.value, cfg.Dest), step.done)
		if err != nil {
			return report, err
		}
		report.add(outcome)
	}
	return report, nil
}

func checkSource(src string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: src %s: %v", errs.ErrInvalidTaskConfiguration, src, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: src %s is a directory", errs.ErrInvalidTaskConfiguration, src)
	}
	return nil
}

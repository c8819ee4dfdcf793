package main

import (
	"github.com/andrej220/configzz/internal/inventory"
	"github.com/andrej220/configzz/internal/lg"
	"github.com/andrej220/configzz/internal/report"
	"github.com/andrej220/configzz/internal/runner"
	"github.com/andrej220/configzz/internal/task"
	"github.com/andrej220/configzz/pkg/config"
	"github.com/andrej220/configzz/pkg/executor"
	"github.com/spf13/cobra"
)

const serviceName = "configzz"

type options struct {
	inventoryPath string
	configPath    string
	reportPath    string
	cfg           *config.RunConfig
}

func newRootCmd(dialer executor.Dialer) *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "configzz TASKS -i INVENTORY [-c CONFIG]",
		Short: "Converge hosts to the state described in a task file",
		Long: `configzz applies the package, service and file tasks in TASKS to every
host listed in INVENTORY, one host after another, over SSH.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			bootstrap := lg.New(&lg.Config{ServiceName: serviceName, Level: lg.LevelInfo})
			cfg, err := config.Load(o.configPath, bootstrap)
			if err != nil {
				return err
			}
			o.cfg = cfg
			cmd.SetContext(lg.Attach(cmd.Context(), lg.New(cfg.LogConfig(serviceName))))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, args[0], dialer)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&o.inventoryPath, "inventory", "i", "", "inventory file containing the host list")
	flags.StringVarP(&o.configPath, "config_file", "c", "", "run configuration file")
	flags.StringVar(&o.configPath, "config", "", "alias for --config_file")
	flags.StringVar(&o.reportPath, "report", "", "write the run summary to this file (.json, .yaml or .yml)")
	_ = flags.MarkHidden("config")
	_ = cmd.MarkFlagRequired("inventory")
	return cmd
}

func (o *options) run(cmd *cobra.Command, tasksPath string, dialer executor.Dialer) error {
	ctx := cmd.Context()
	logger := lg.FromContext(ctx)
	defer logger.Sync()

	tasks, err := task.ReadTasks(tasksPath)
	if err != nil {
		logger.Error("cannot read tasks", lg.String("path", tasksPath), lg.Err(err))
		return err
	}
	hosts, err := inventory.Load(o.inventoryPath)
	if err != nil {
		logger.Error("cannot read inventory", lg.String("path", o.inventoryPath), lg.Err(err))
		return err
	}
	logger.Info("loaded",
		lg.Int("tasks", len(tasks)),
		lg.Int("hosts", len(hosts)),
		lg.String("log_level", o.cfg.LogLevel))

	summary, err := runner.New(dialer, o.cfg.SSH, logger).Run(ctx, hosts, tasks)
	if o.reportPath != "" {
		if werr := report.WriteFile(summary, o.reportPath); werr != nil {
			logger.Error("cannot write report", lg.Err(werr))
			if err == nil {
				err = werr
			}
		}
	}
	return err
}

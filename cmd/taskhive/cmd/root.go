package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/armadaproject/taskhive/internal/common"
	commonconfig "github.com/armadaproject/taskhive/internal/common/config"
	schedulerconfig "github.com/armadaproject/taskhive/internal/scheduler/configuration"
)

const (
	CustomConfigLocation string = "config"
	defaultConfigPath    string = "./config/taskhive"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "taskhive",
		SilenceUsage: true,
		Short:        "Schedules tasks of long running jobs onto a fleet of workers",
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	_ = viper.BindPFlag(CustomConfigLocation, cmd.PersistentFlags().Lookup(CustomConfigLocation))

	cmd.AddCommand(
		runCmd(),
		fetchStatusesCmd(),
		validateConfigCmd(),
	)

	return cmd
}

func loadConfig() (schedulerconfig.Configuration, error) {
	var config schedulerconfig.Configuration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	common.LoadConfig(&config, defaultConfigPath, userSpecifiedConfigs)

	err := config.Validate()
	if err != nil {
		commonconfig.LogValidationErrors(err)
	}
	return config, err
}

package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/armadaproject/taskhive/internal/scheduler"
	"github.com/armadaproject/taskhive/internal/scheduler/policy"
)

func validateConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validateConfig",
		Short: "checks the configuration, including job filters and resources, without starting the scheduler",
		RunE:  validateConfig,
	}
	return cmd
}

func validateConfig(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	cluster, err := scheduler.BuildCluster(config)
	if err != nil {
		return err
	}
	if _, err := policy.New(config.SchedulingPolicy); err != nil {
		return err
	}
	log.Infof("Configuration is valid: %d jobs, %d nodes, %d node types, policy %s",
		len(cluster.Jobs), len(cluster.Nodes), len(cluster.Capacity), config.SchedulingPolicy)
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/armadaproject/taskhive/internal/scheduler"
)

func fetchStatusesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetchStatuses",
		Short: "prints the recorded task results of one or more jobs",
		RunE:  fetchStatuses,
	}
	cmd.Flags().StringSlice(
		"job",
		[]string{},
		"Id of a job whose task results should be printed (repeat or separate with commas)")
	cmd.Flags().Duration(
		"timeout",
		time.Minute,
		"Duration after which the command will fail if it has not completed")
	return cmd
}

func fetchStatuses(cmd *cobra.Command, _ []string) error {
	jobIds, err := cmd.Flags().GetStringSlice("job")
	if err != nil {
		return errors.WithStack(err)
	}
	if len(jobIds) == 0 {
		return errors.New("at least one --job is required")
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return errors.WithStack(err)
	}

	config, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	store, closeStore, err := scheduler.OpenTaskStore(ctx, config.TaskStore)
	if err != nil {
		return err
	}
	defer closeStore()

	taskStatuses, err := store.FetchJobTasks(ctx, jobIds)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tNODE\tRESULT\tTIME")
	for _, status := range taskStatuses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", status.JobId, status.NodeId, status.Result, status.Timestamp.Format(time.RFC3339))
	}
	return w.Flush()
}

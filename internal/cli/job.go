package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewJobCmd создаёт группу команд для просмотра job'ов через API воркера.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect test jobs",
	}

	cmd.AddCommand(newJobShowCmd(clientFn, outputFn))

	return cmd
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show JOB_ID",
		Short: "Show job status and results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := clientFn().GetJob(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "SPEC", "STATUS", "PASSES", "TESTS", "SCREENSHOTS", "ERROR"}
			passes, tests := "-", "-"
			if job.ReporterStats != nil {
				passes = strconv.Itoa(job.ReporterStats.Passes)
				tests = strconv.Itoa(job.ReporterStats.Tests)
			}
			errText := ""
			if job.Error != nil {
				errText = *job.Error
			}
			rows := [][]string{{
				job.ID,
				job.Case.FileName,
				job.Status,
				passes,
				tests,
				strconv.Itoa(len(job.Screenshots)),
				errText,
			}}

			outputFn().Print(headers, rows, job)
			return nil
		},
	}
}

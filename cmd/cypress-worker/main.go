// cypress-worker — воркер, выполняющий Cypress-тесты из очереди.
//
// Использование:
//
//	cypress-worker [--config FILE] [run]
//	cypress-worker enqueue TEST_ID...
//	cypress-worker [--api-url URL] [--json] job show JOB_ID
//
// Команды:
//
//	run      Опрашивать очередь и выполнять тесты (по умолчанию)
//	enqueue  Поставить job'ы в очередь
//	job      Посмотреть job через API работающего воркера
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vgarzom/miso4208-project-cypress-executor/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configFile string
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "cypress-worker",
		Short:         "Runs queued Cypress test jobs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				return os.Setenv("CONFIG_FILE", configFile)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8082", "Worker API URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Poll the queue and execute test jobs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWorker(cmd.Context())
			},
		},
		cli.NewEnqueueCmd(openSender, outputFn),
		cli.NewJobCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

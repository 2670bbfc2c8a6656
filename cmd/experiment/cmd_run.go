package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bburan/pyexperiment/pkg/experiment"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <definition.yaml>",
		Short: "Run an experiment from a YAML definition",
		Long: `Run an experiment from a YAML definition.

Each trial resolves the full parameter context, prints it, and records the
loggable values. The run ends when a bounded trial sequence is exhausted
or the trial cap is reached.

Examples:
  experiment run tones.yaml
  experiment run tones.yaml --db run.db --max-trials 20
  experiment run tones.yaml --values tweaked.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			maxTrials, _ := cmd.Flags().GetInt("max-trials")
			valuesPath, _ := cmd.Flags().GetString("values")

			def, err := experiment.LoadDefinition(args[0])
			if err != nil {
				return err
			}
			par, err := def.Paradigm()
			if err != nil {
				return err
			}
			if valuesPath != "" {
				if err := par.ReadFile(valuesPath); err != nil {
					return fmt.Errorf("loading values from %s: %w", valuesPath, err)
				}
			}

			opts := []experiment.Option{
				experiment.WithMaxTrials(maxTrials),
				experiment.WithTrialFunc(printTrial),
			}
			if dbPath != "" {
				opts = append(opts, experiment.WithSQLiteRecorder(dbPath))
			}

			run, err := experiment.New(par, opts...)
			if err != nil {
				return err
			}
			defer run.Close()

			if err := run.Run(); err != nil {
				return err
			}
			fmt.Printf("completed %d trials\n", run.Trials())
			return nil
		},
	}

	cmd.Flags().String("db", "", "Record trials and events to a SQLite database")
	cmd.Flags().Int("max-trials", 0, "Stop after this many trials (0 = until exhausted)")
	cmd.Flags().String("values", "", "Load saved parameter values (JSON) before running")
	return cmd
}

func printTrial(trial int, context map[string]any) (map[string]any, error) {
	names := make([]string, 0, len(context))
	for name := range context {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Printf("trial %d:", trial)
	for _, name := range names {
		fmt.Printf(" %s=%v", name, context[name])
	}
	fmt.Println()
	return nil, nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bburan/pyexperiment/internal/eval"
	"github.com/bburan/pyexperiment/pkg/experiment"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <definition.yaml>",
		Short: "Validate an experiment definition without running it",
		Long: `Validate an experiment definition without running it.

Every formula is compiled and the full parameter set is resolved in a dry
run, so definition errors (bad syntax, unknown helpers, unresolvable
references, circular dependencies) are reported without consuming any
sequence state.

Examples:
  experiment validate tones.yaml
  experiment validate tones.yaml --values tweaked.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			ns := eval.NewNamespace(par.Expressions())
			if err := ns.DryRun(nil); err != nil {
				return err
			}
			fmt.Printf("%s: %d parameters ok\n", args[0], len(par.Parameters()))
			return nil
		},
	}

	cmd.Flags().String("values", "", "Validate with saved parameter values (JSON) applied")
	return cmd
}

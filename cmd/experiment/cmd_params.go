package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bburan/pyexperiment/pkg/experiment"
)

func newParamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "params <definition.yaml>",
		Short: "List the parameters declared by an experiment definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := experiment.LoadDefinition(args[0])
			if err != nil {
				return err
			}
			par, err := def.Paradigm()
			if err != nil {
				return err
			}
			fmt.Print(par.FormatParameters())
			return nil
		},
	}
}

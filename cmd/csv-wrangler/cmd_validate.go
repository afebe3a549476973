package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dr3s/csv-wrangler/internal/config"
)

var errInvalidConfig = errors.New("configuration is invalid")

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Lint the pipeline and compile every mapping formula",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadPipeline(g, overrides{})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			issues := config.ValidatePipeline(p)
			for _, iss := range issues {
				fmt.Fprintf(out, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
			}
			if config.HasErrors(issues) {
				return errInvalidConfig
			}
			fmt.Fprintf(out, "configuration is valid: %d mappings, source=%s sink=%s\n",
				len(p.Mappings), p.Source.Kind, p.Sink.Kind)
			return nil
		},
	}
}

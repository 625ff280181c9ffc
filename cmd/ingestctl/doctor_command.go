package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"podingest/internal/config"
	"podingest/internal/orchestrator"
)

func newDoctorCommand(cfgRef **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check availability of external binaries the pipeline depends on",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *cfgRef
			out := cmd.OutOrStdout()
			for _, health := range orchestrator.HealthChecks(cfg) {
				status := "OK"
				if !health.Ready {
					status = "MISSING: " + health.Detail
				}
				fmt.Fprintf(out, "%-10s %s\n", health.Name, status)
			}
			return nil
		},
	}
}

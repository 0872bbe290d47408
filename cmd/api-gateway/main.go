package main

import (
	"os"

	"github.com/spf13/cobra"
)

// @title SQL Academy API
// @version 1.0.0
// @description Course catalog, gated lessons, progress reconciliation and certificates for SQL Academy.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	root := &cobra.Command{
		Use:           "sql-academy",
		Short:         "SQL Academy API server and tooling",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCommand(), newMigrateCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

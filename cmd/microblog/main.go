package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/d60-Lab/microblog/cmd/microblog/commands"
)

// @title Microblog API
// @version 1.0
// @description Posts, follow graph, feed and full-text search.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	rootCmd := &cobra.Command{
		Use:           "microblog",
		Short:         "Microblog service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		commands.NewServeCommand(),
		commands.NewReindexCommand(),
		commands.NewMigrateCommand(),
	)
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/genegpt-server/internal/app"
)

func newAskCommand(env *cliEnv) *cobra.Command {
	var showHTML bool

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Answer a single question and print the reply",
		Example: `  genegpt ask "What is the function of TP53?"
  genegpt ask "Show me isoform 2 of AKT1"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pipeline, err := app.New(ctx, env.config, env.logger, app.Options{QueryLog: true})
			if err != nil {
				return err
			}
			defer pipeline.Close()

			resp := pipeline.Processor.ProcessQuery(ctx, strings.Join(args, " "), nil)
			fmt.Fprintln(cmd.OutOrStdout(), resp.Reply)
			if showHTML && resp.HTML != "" {
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprintln(cmd.OutOrStdout(), resp.HTML)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showHTML, "html", false, "also print the rendered HTML fragment")
	return cmd
}

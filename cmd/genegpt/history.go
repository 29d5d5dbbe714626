package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/genegpt-server/internal/history"
)

func newHistoryCommand(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect stored chat history",
	}

	var userID string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write every chat of a user as JSON to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := history.Open(env.config.History)
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("chat history is disabled (history.driver is none)")
			}
			defer store.Close()

			return store.ExportJSON(cmd.Context(), userID, cmd.OutOrStdout())
		},
	}
	export.Flags().StringVar(&userID, "user", "", "user id whose chats to export")
	_ = export.MarkFlagRequired("user")

	cmd.AddCommand(export)
	return cmd
}

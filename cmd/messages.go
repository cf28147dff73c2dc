package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var messagesLimit int

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Draft outreach messages for qualified leads",
	Long:  "Generates a personalised message for each qualified Active lead that has none yet and records the outcome on the lead.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "messages")
		if err != nil {
			return err
		}
		defer env.Close()

		limit := messagesLimit
		if limit == 0 {
			limit = cfg.Message.BatchLimit
		}

		c, err := env.Generator.RunPending(ctx, limit)
		formatMessageCounters(os.Stdout, c)
		if err != nil {
			return eris.Wrap(err, "messages")
		}
		return nil
	},
}

func init() {
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 0, "maximum leads to process (default from config)")
	rootCmd.AddCommand(messagesCmd)
}

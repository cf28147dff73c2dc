package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rescoreCmd = &cobra.Command{
	Use:   "rescore <identity-key>...",
	Short: "Re-evaluate stored leads with the current scoring strategy",
	Long:  "Rescores each lead and moves it between the Active and Discarded stores when its qualification changes.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "rescore")
		if err != nil {
			return err
		}
		defer env.Close()

		var failed int
		for _, key := range args {
			res, err := env.Router.Rescore(ctx, key)
			if err != nil {
				failed++
				zap.L().Error("rescore failed", zap.String("identity_key", key), zap.Error(err))
				continue
			}
			formatRescore(os.Stdout, res)
		}

		if failed > 0 {
			return eris.Errorf("rescore: %d of %d leads failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rescoreCmd)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-cli/internal/store"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "List scored leads within a fit score range",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		lo, err := optionalFloat(cmd, "min")
		if err != nil {
			return err
		}
		hi, err := optionalFloat(cmd, "max")
		if err != nil {
			return err
		}
		scopeFlag, _ := cmd.Flags().GetString("scope")
		scope, err := store.ParseScope(scopeFlag)
		if err != nil {
			return eris.Wrap(err, "query: --scope")
		}
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		env, err := initEnv(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		leads, err := env.Router.QueryByScore(ctx, lo, hi, scope, limit)
		if err != nil {
			return eris.Wrap(err, "query")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(leads)
		}
		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}
		formatLeads(os.Stdout, leads)
		return nil
	},
}

// optionalFloat returns nil when the flag was not set.
func optionalFloat(cmd *cobra.Command, name string) (*float64, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	v, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		return nil, eris.Wrapf(err, "query: --%s", name)
	}
	return &v, nil
}

func init() {
	queryCmd.Flags().Float64("min", 0, "minimum fit score (inclusive)")
	queryCmd.Flags().Float64("max", 0, "maximum fit score (inclusive)")
	queryCmd.Flags().String("scope", "active", "stores to search: active or all")
	queryCmd.Flags().Int("limit", 100, "maximum leads to return (0 = no limit)")
	queryCmd.Flags().Bool("json", false, "print leads as JSON")
	rootCmd.AddCommand(queryCmd)
}

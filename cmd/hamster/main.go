package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cuemby/hamster/pkg/client"
	"github.com/cuemby/hamster/pkg/types"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hamster",
	Short: "Hamster - compute provider pool and DApp scheduler",
	Long: `Hamster pools compute resources contributed by providers and places
DApps on them. Each DApp goes to the smallest resource that can hold it,
and DApps on resources that stop reporting are moved elsewhere.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Hamster version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("manager", "127.0.0.1:7070", "Manager API address")
	rootCmd.PersistentFlags().String("account", os.Getenv("HAMSTER_ACCOUNT"), "Account to act as (env HAMSTER_ACCOUNT)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table, json)")

	rootCmd.AddCommand(managerCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(resourceCmd)
	rootCmd.AddCommand(dappCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(applyCmd)
}

// connect opens a client with the global --manager and --account flags
func connect(cmd *cobra.Command) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("manager")
	account, _ := cmd.Flags().GetString("account")
	return client.NewClient(addr, types.AccountID(account))
}

// requireAccount connects and fails early when no account is set
func requireAccount(cmd *cobra.Command) (*client.Client, error) {
	account, _ := cmd.Flags().GetString("account")
	if account == "" {
		return nil, fmt.Errorf("--account is required")
	}
	return connect(cmd)
}

func jsonOutput(cmd *cobra.Command) bool {
	output, _ := cmd.Flags().GetString("output")
	return output == "json"
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

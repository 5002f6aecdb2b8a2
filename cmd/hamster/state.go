package main

import (
	"fmt"
	"path/filepath"

	"github.com/cuemby/hamster/pkg/provider"
	"github.com/cuemby/hamster/pkg/storage"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect the state file of a stopped manager",
	Long: `Inspect the state file of a manager. The manager holds an exclusive
lock on the file while running, so stop it first.`,
}

var stateCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the consistency of the provider state",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openState(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		p := provider.NewProvider(store, nil, 0)
		if err := p.Check(); err != nil {
			return fmt.Errorf("state is inconsistent: %w", err)
		}

		stats, err := p.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("✓ State is consistent (epoch %d)\n", stats.Epoch)
		fmt.Printf("  Resources: %v\n", stats.Resources)
		fmt.Printf("  DApps:     %v\n", stats.DApps)
		fmt.Printf("  CPU:       %d/%d unused\n", stats.UnusedCPU, stats.TotalCPU)
		fmt.Printf("  Memory:    %d/%d unused\n", stats.UnusedMemory, stats.TotalMemory)
		return nil
	},
}

var stateDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every bucket of the state file as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openState(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		dump, err := store.Dump()
		if err != nil {
			return err
		}
		return printJSON(dump)
	},
}

var stateBackupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Copy the state file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openState(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Backup(args[0]); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Printf("✓ Backup written to %s\n", args[0])
		return nil
	},
}

func openState(cmd *cobra.Command) (*storage.BoltStore, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	path := filepath.Join(dataDir, "hamster.db")
	store, err := storage.OpenBoltStore(path, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return store, nil
}

func init() {
	stateCmd.AddCommand(stateCheckCmd)
	stateCmd.AddCommand(stateDumpCmd)
	stateCmd.AddCommand(stateBackupCmd)

	stateCmd.PersistentFlags().String("data-dir", "./hamster-data", "Manager data directory")
}

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/hamster/pkg/types"
	"github.com/spf13/cobra"
)

var resourceCmd = &cobra.Command{
	Use:   "resource",
	Short: "Manage computing resources",
}

var resourceRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a computing resource owned by --account",
	RunE: func(cmd *cobra.Command, args []string) error {
		peerID, _ := cmd.Flags().GetString("peer-id")
		publicIP, _ := cmd.Flags().GetString("public-ip")
		cpu, _ := cmd.Flags().GetUint32("cpu")
		memory, _ := cmd.Flags().GetUint32("memory")

		c, err := requireAccount(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		id, err := c.RegisterResource(context.Background(), peerID, publicIP, cpu, memory)
		if err != nil {
			return fmt.Errorf("failed to register resource: %w", err)
		}

		fmt.Printf("✓ Resource registered: %d (cpu=%d, memory=%d)\n", id, cpu, memory)
		return nil
	},
}

var resourceHeartbeatCmd = &cobra.Command{
	Use:   "heartbeat ID [DAPP_ID...]",
	Short: "Report a resource alive with the DApps it runs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		c, err := requireAccount(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.ResourceHeartbeat(context.Background(), ids[0], ids[1:]); err != nil {
			return fmt.Errorf("heartbeat failed: %w", err)
		}
		fmt.Printf("✓ Heartbeat recorded for resource %d\n", ids[0])
		return nil
	},
}

var resourceOfflineCmd = &cobra.Command{
	Use:   "offline ID",
	Short: "Take a resource out of the pool",
	Long: `Take a resource out of the pool. Its DApps are moved to other
resources; those that fit nowhere are destroyed and listed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		c, err := requireAccount(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		failed, err := c.OfflineResource(context.Background(), ids[0])
		if err != nil {
			return fmt.Errorf("failed to take resource offline: %w", err)
		}

		fmt.Printf("✓ Resource %d is offline\n", ids[0])
		if len(failed) > 0 {
			fmt.Printf("⚠ DApps that could not be moved: %s\n", strings.Join(failed, ", "))
		}
		return nil
	},
}

var resourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")

		c, err := connect(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		resources, err := c.ListResources(context.Background(), types.AccountID(owner))
		if err != nil {
			return fmt.Errorf("failed to list resources: %w", err)
		}
		if jsonOutput(cmd) {
			return printJSON(resources)
		}

		w := newTable()
		fmt.Fprintln(w, "ID\tOWNER\tPEER\tSTATUS\tCPU\tMEMORY\tDAPPS\tLAST HEARTBEAT")
		for _, r := range resources {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d/%d\t%d/%d\t%d\t%d\n",
				r.Index, r.Owner, r.PeerID, r.Status,
				r.Config.UnusedCPU, r.Config.TotalCPU,
				r.Config.UnusedMemory, r.Config.TotalMemory,
				len(r.DApps), r.LastHeartbeat)
		}
		return w.Flush()
	},
}

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Show the capacity rank used for placement",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		rank, err := c.GetRank(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get rank: %w", err)
		}
		if jsonOutput(cmd) {
			return printJSON(rank)
		}

		fmt.Printf("Epoch: %d\n", rank.Epoch)
		w := newTable()
		fmt.Fprintln(w, "POSITION\tRESOURCE\tSCORE")
		for i, e := range rank.Rank {
			fmt.Fprintf(w, "%d\t%d\t%d\n", i, e.ResourceID, e.Score)
		}
		return w.Flush()
	},
}

func parseIDs(args []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func init() {
	resourceCmd.AddCommand(resourceRegisterCmd)
	resourceCmd.AddCommand(resourceHeartbeatCmd)
	resourceCmd.AddCommand(resourceOfflineCmd)
	resourceCmd.AddCommand(resourceListCmd)
	resourceCmd.AddCommand(rankCmd)

	resourceRegisterCmd.Flags().String("peer-id", "", "Peer ID of the node")
	resourceRegisterCmd.Flags().String("public-ip", "", "Public IP of the node")
	resourceRegisterCmd.Flags().Uint32("cpu", 0, "CPU units offered")
	resourceRegisterCmd.Flags().Uint32("memory", 0, "Memory units offered")
	_ = resourceRegisterCmd.MarkFlagRequired("peer-id")
	_ = resourceRegisterCmd.MarkFlagRequired("public-ip")

	resourceListCmd.Flags().String("owner", "", "Only list resources of this account")
}

package main

import (
	"context"
	"fmt"

	"github.com/cuemby/hamster/pkg/client"
	"github.com/cuemby/hamster/pkg/launch"
	"github.com/cuemby/hamster/pkg/provider"
	"github.com/cuemby/hamster/pkg/types"
	"github.com/spf13/cobra"
)

var dappCmd = &cobra.Command{
	Use:   "dapp",
	Short: "Manage DApps",
}

var dappDeployCmd = &cobra.Command{
	Use:   "deploy NAME",
	Short: "Deploy a DApp on the smallest resource that fits it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := deploymentFromFlags(cmd, args[0])
		if err != nil {
			return err
		}

		c, err := requireAccount(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		id, err := c.RequestDeployment(context.Background(), req)
		if err != nil {
			return fmt.Errorf("failed to deploy: %w", err)
		}
		return printPlacement(cmd, c, id)
	},
}

var dappChangeCmd = &cobra.Command{
	Use:   "change NAME",
	Short: "Replace the deployment of a DApp",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := deploymentFromFlags(cmd, args[0])
		if err != nil {
			return err
		}

		c, err := requireAccount(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		id, err := c.ChangeSpecification(context.Background(), req)
		if err != nil {
			return fmt.Errorf("failed to change deployment: %w", err)
		}
		return printPlacement(cmd, c, id)
	},
}

var dappEndCmd = &cobra.Command{
	Use:   "end ID",
	Short: "End a DApp deployment",
	Args:  cobra.ExactArgs(1),
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

		if err := c.EndDeployment(context.Background(), ids[0]); err != nil {
			return fmt.Errorf("failed to end deployment: %w", err)
		}
		fmt.Printf("✓ DApp %d ended\n", ids[0])
		return nil
	},
}

var dappHeartbeatCmd = &cobra.Command{
	Use:   "heartbeat NAME",
	Short: "Report a DApp alive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireAccount(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.DAppHeartbeat(context.Background(), args[0]); err != nil {
			return fmt.Errorf("heartbeat failed: %w", err)
		}
		fmt.Printf("✓ Heartbeat recorded for %s\n", args[0])
		return nil
	},
}

var dappListCmd = &cobra.Command{
	Use:   "list",
	Short: "List DApps",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")

		c, err := connect(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		dapps, err := c.ListDApps(context.Background(), types.AccountID(owner))
		if err != nil {
			return fmt.Errorf("failed to list dapps: %w", err)
		}
		if jsonOutput(cmd) {
			return printJSON(dapps)
		}

		w := newTable()
		fmt.Fprintln(w, "ID\tOWNER\tNAME\tSTATUS\tRESOURCE\tDEPLOYMENT\tLAST HEARTBEAT")
		for _, d := range dapps {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\n",
				d.ID, d.Owner, d.Name, d.Status, d.ResourceID, d.DeploymentID, d.LastHeartbeat)
		}
		return w.Flush()
	},
}

var dappSpecCmd = &cobra.Command{
	Use:   "spec ID",
	Short: "Print the OCI runtime spec a resource would launch the DApp with",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		c, err := connect(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.GetDApp(context.Background(), ids[0])
		if err != nil {
			return fmt.Errorf("failed to get dapp: %w", err)
		}
		if resp.Deployment == nil {
			return fmt.Errorf("dapp %d has no deployment", ids[0])
		}
		spec, err := launch.Spec(resp.DApp, resp.Deployment)
		if err != nil {
			return err
		}
		return printJSON(spec)
	},
}

// deploymentFromFlags builds a request from --image/--port or --cid
func deploymentFromFlags(cmd *cobra.Command, name string) (provider.DeploymentRequest, error) {
	image, _ := cmd.Flags().GetString("image")
	port, _ := cmd.Flags().GetUint16("port")
	cid, _ := cmd.Flags().GetString("cid")
	cpu, _ := cmd.Flags().GetUint32("cpu")
	memory, _ := cmd.Flags().GetUint32("memory")
	replicas, _ := cmd.Flags().GetUint32("replicas")

	var method types.DeploymentMethod
	switch {
	case image != "" && cid != "":
		return provider.DeploymentRequest{}, fmt.Errorf("--image and --cid are mutually exclusive")
	case image != "":
		method = types.CliDeployment(image, port)
	case cid != "":
		method = types.IpfsDeployment(cid)
	default:
		return provider.DeploymentRequest{}, fmt.Errorf("one of --image or --cid is required")
	}

	return provider.DeploymentRequest{
		Name:      name,
		Method:    method,
		CPU:       cpu,
		Memory:    memory,
		Replicas:  replicas,
		Available: replicas,
	}, nil
}

func printPlacement(cmd *cobra.Command, c *client.Client, id uint64) error {
	resp, err := c.GetDApp(context.Background(), id)
	if err != nil {
		return fmt.Errorf("deployed as %d but failed to read it back: %w", id, err)
	}
	if jsonOutput(cmd) {
		return printJSON(resp)
	}
	fmt.Printf("✓ DApp %s deployed: %d on resource %d\n", resp.DApp.Name, resp.DApp.ID, resp.DApp.ResourceID)
	return nil
}

func init() {
	dappCmd.AddCommand(dappDeployCmd)
	dappCmd.AddCommand(dappChangeCmd)
	dappCmd.AddCommand(dappEndCmd)
	dappCmd.AddCommand(dappHeartbeatCmd)
	dappCmd.AddCommand(dappListCmd)
	dappCmd.AddCommand(dappSpecCmd)

	for _, c := range []*cobra.Command{dappDeployCmd, dappChangeCmd} {
		c.Flags().String("image", "", "Container image (cli method)")
		c.Flags().Uint16("port", 0, "Port the container listens on (cli method)")
		c.Flags().String("cid", "", "Content id (ipfs method)")
		c.Flags().Uint32("cpu", 1, "CPU units required")
		c.Flags().Uint32("memory", 1, "Memory units required")
		c.Flags().Uint32("replicas", 1, "Replicas recorded with the deployment")
	}

	dappListCmd.Flags().String("owner", "", "Only list DApps of this account")
}

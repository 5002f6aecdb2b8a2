package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/hamster/pkg/agent"
	"github.com/cuemby/hamster/pkg/health"
	"github.com/cuemby/hamster/pkg/log"
	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Send heartbeats for a resource and its DApps",
	Long: `Run on a provider node. Every interval the agent probes the DApps
placed on the resource and reports the healthy ones to the manager.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resourceID, _ := cmd.Flags().GetUint64("resource-id")
		interval, _ := cmd.Flags().GetDuration("interval")
		probe, _ := cmd.Flags().GetString("probe")
		retries, _ := cmd.Flags().GetInt("retries")
		startPeriod, _ := cmd.Flags().GetDuration("start-period")
		logLevel, _ := cmd.Flags().GetString("log-level")
		logJSON, _ := cmd.Flags().GetBool("log-json")

		log.Init(log.Config{
			Level:      log.ParseLevel(logLevel),
			JSONOutput: logJSON,
		})

		c, err := requireAccount(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		cfg := health.DefaultConfig()
		cfg.Retries = retries
		cfg.StartPeriod = startPeriod

		a := agent.NewAgent(c, agent.Config{
			ResourceID: resourceID,
			Interval:   interval,
			Probe:      health.CheckType(probe),
			Health:     cfg,
		})
		a.Start()

		fmt.Printf("✓ Agent running for resource %d (interval %s)\n", resourceID, interval)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down agent...")
		a.Stop()
		return nil
	},
}

func init() {
	agentCmd.Flags().Uint64("resource-id", 0, "Resource to send heartbeats for")
	agentCmd.Flags().Duration("interval", agent.DefaultInterval, "Heartbeat interval (one epoch)")
	agentCmd.Flags().String("probe", string(health.CheckTypeTCP), "DApp probe (tcp, http)")
	agentCmd.Flags().Int("retries", 3, "Failed probes before a DApp is left out")
	agentCmd.Flags().Duration("start-period", 30*time.Second, "Grace period for newly placed DApps")
	agentCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	agentCmd.Flags().Bool("log-json", false, "Output logs in JSON format")
	_ = agentCmd.MarkFlagRequired("resource-id")
}

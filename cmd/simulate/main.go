package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xmh1011/raft-sim/raft"
	"github.com/xmh1011/raft-sim/sim"
)

// Config holds the simulation configuration
type Config struct {
	Nodes      int
	Duration   time.Duration
	ConfigPath string
	Proposals  []string
}

var (
	config  Config
	nodeCfg = raft.DefaultConfig()
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "raft-simulate",
		Short: "Run an in-process cluster for a fixed time and check log consistency",
		RunE:  runSimulation,
	}

	rootCmd.Flags().IntVar(&config.Nodes, "nodes", 10, "Number of nodes in the cluster")
	rootCmd.Flags().DurationVar(&config.Duration, "duration", 5*time.Second, "How long the cluster runs before it is stopped")
	rootCmd.Flags().StringVar(&config.ConfigPath, "config", "", "YAML file with node timing parameters; explicit flags override it")
	rootCmd.Flags().StringSliceVar(&config.Proposals, "propose", nil, "Data to submit through the leader once one is elected")
	raft.BindFlags(rootCmd.Flags(), &nodeCfg)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	if config.ConfigPath != "" {
		if err := raft.ApplyFile(config.ConfigPath, cmd.Flags(), &nodeCfg); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	s, err := sim.New(config.Nodes, nodeCfg)
	if err != nil {
		return fmt.Errorf("failed to create simulation: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Duration)
	defer cancel()

	s.Start()
	submitProposals(ctx, s, config.Proposals)

	// Run the simulation for the remaining time
	<-ctx.Done()
	s.Stop()

	report := s.Audit()
	if err := report.Write(os.Stdout); err != nil {
		return err
	}
	if !report.Consistent() {
		return errors.New("log inconsistencies detected")
	}
	return nil
}

func submitProposals(ctx context.Context, s *sim.Simulation, proposals []string) {
	if len(proposals) == 0 {
		return
	}
	c := s.Client()
	for _, data := range proposals {
		entry, err := c.SendCommand(ctx, data)
		if err != nil {
			log.Printf("[Simulation] Proposal %q was not committed: %v", data, err)
			continue
		}
		log.Printf("[Simulation] Proposal %q committed as %s", data, entry)
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xmh1011/raft-sim/param"
	grpctransport "github.com/xmh1011/raft-sim/transport/grpc"
	"github.com/xmh1011/raft-sim/transport/tcp"
)

var (
	peersStr      string
	data          string
	timeout       time.Duration
	transportType string
)

type sendFunc func(ctx context.Context, addr string, msg param.Message) error

func senderFor(kind string) (sendFunc, error) {
	switch kind {
	case "grpc":
		return grpctransport.Send, nil
	case "tcp":
		return tcp.Send, nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", kind)
	}
}

func main() {
	var rootCmd = &cobra.Command{
		Use:   "raft-client",
		Short: "Submit a proposal to a cluster of raft-server nodes",
		Run:   runClient,
	}

	rootCmd.Flags().StringVar(&peersStr, "peers", "0=127.0.0.1:8001,1=127.0.0.1:8002,2=127.0.0.1:8003", "Comma-separated list of peer ID=Address pairs")
	rootCmd.Flags().StringVar(&data, "data", "", "Data of the log entry to propose")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "Per-node delivery timeout")
	rootCmd.Flags().StringVar(&transportType, "transport", "grpc", "Transport type the servers use: grpc, tcp")
	_ = rootCmd.MarkFlagRequired("data")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runClient(_ *cobra.Command, _ []string) {
	send, err := senderFor(transportType)
	if err != nil {
		log.Fatal(err)
	}

	// 1. 解析 peers
	peerMap := make(map[int]string)
	for _, p := range strings.Split(peersStr, ",") {
		parts := strings.Split(p, "=")
		if len(parts) != 2 {
			log.Fatalf("Invalid peer format: %s", p)
		}
		var id int
		if _, err := fmt.Sscanf(parts[0], "%d", &id); err != nil {
			log.Fatalf("Invalid peer ID: %s", parts[0])
		}
		peerMap[id] = parts[1]
	}

	// 2. 客户端不知道谁是 Leader：把提议投递给每个节点，只有 Leader 会处理，其它节点直接丢弃。
	proposal := param.NewProposal(data)
	delivered := 0
	for id, addr := range peerMap {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := send(ctx, addr, proposal)
		cancel()
		if err != nil {
			log.Printf("[Client] Failed to deliver proposal to node %d at %s: %v", id, addr, err)
			continue
		}
		delivered++
	}

	if delivered == 0 {
		fmt.Printf("❌ Proposal %q could not be delivered to any node.\n", data)
		os.Exit(1)
	}
	fmt.Printf("✅ Proposal %q delivered to %d/%d nodes.\n", data, delivered, len(peerMap))
}

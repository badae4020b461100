package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xmh1011/raft-sim/raft"
	"github.com/xmh1011/raft-sim/transport"
	grpctransport "github.com/xmh1011/raft-sim/transport/grpc"
	"github.com/xmh1011/raft-sim/transport/tcp"
)

const (
	GrpcTransport = "grpc"
	TcpTransport  = "tcp"
)

// Config holds the server configuration
type Config struct {
	NodeID        int
	PeersStr      string
	ConfigPath    string
	TransportType string
}

// nodeTransport is what the server needs from a cross-process transport.
type nodeTransport interface {
	Addr() string
	SetPeers(peers map[int]string)
	Register(id int, sink transport.Peer)
	Start() error
	Close() error
	Peers(n int) []transport.Peer
}

// newTransport creates the transport named by kind listening on addr.
func newTransport(kind, addr string) (nodeTransport, error) {
	switch kind {
	case GrpcTransport:
		return grpctransport.NewTransport(addr)
	case TcpTransport:
		return tcp.NewTCPTransport(addr)
	default:
		return nil, fmt.Errorf("unknown transport type %q", kind)
	}
}

var (
	config  Config
	nodeCfg = raft.DefaultConfig()
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "raft-server",
		Short: "Run one cluster node and deliver its messages over the network",
		Run:   runServer,
	}

	rootCmd.Flags().IntVar(&config.NodeID, "id", 0, "Node ID, its position in the peers list")
	rootCmd.Flags().StringVar(&config.PeersStr, "peers", "0=127.0.0.1:8001,1=127.0.0.1:8002,2=127.0.0.1:8003", "Comma-separated list of peer ID=Address pairs, IDs 0..N-1")
	rootCmd.Flags().StringVar(&config.ConfigPath, "config", "", "YAML file with node timing parameters; explicit flags override it")
	rootCmd.Flags().StringVar(&config.TransportType, "transport", GrpcTransport, "Transport type: grpc, tcp")
	raft.BindFlags(rootCmd.Flags(), &nodeCfg)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) {
	if config.ConfigPath != "" {
		if err := raft.ApplyFile(config.ConfigPath, cmd.Flags(), &nodeCfg); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else if err := nodeCfg.Validate(); err != nil {
		log.Fatalf("Invalid node config: %v", err)
	}

	srv, err := NewServer(config, nodeCfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	waitForSignal(srv)
}

// Server represents one node together with its transport
type Server struct {
	config    Config
	node      *raft.Node
	transport nodeTransport
	stop      chan struct{}
}

// NewServer creates a new Server instance
func NewServer(cfg Config, nodeCfg raft.Config) (*Server, error) {
	// 1. Parse peers
	peerMap, err := parsePeers(cfg.PeersStr, cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse peers: %w", err)
	}

	// 2. Initialize transport
	trans, err := newTransport(cfg.TransportType, peerMap[cfg.NodeID])
	if err != nil {
		return nil, fmt.Errorf("failed to initialize transport: %w", err)
	}
	trans.SetPeers(peerMap)

	// 3. Create the node and its view of the cluster
	node := raft.NewNode(cfg.NodeID, nodeCfg, nil)
	trans.Register(cfg.NodeID, node)
	node.SetCluster(raft.NewCluster(trans.Peers(len(peerMap))...))

	return &Server{
		config:    cfg,
		node:      node,
		transport: trans,
		stop:      make(chan struct{}),
	}, nil
}

// Start starts the transport and the node loop
func (s *Server) Start() error {
	log.Printf("Starting %s transport service on %s", s.config.TransportType, s.transport.Addr())
	if err := s.transport.Start(); err != nil {
		return err
	}

	go s.node.Run()
	go s.reportCommits()

	log.Printf("Raft node %d started", s.config.NodeID)
	return nil
}

// Stop stops the node and closes the transport
func (s *Server) Stop() {
	log.Println("Shutting down...")
	close(s.stop)
	s.node.Stop()
	<-s.node.Done()
	if err := s.transport.Close(); err != nil {
		log.Printf("Failed to close transport: %v", err)
	}
	log.Println("Node stopped")
}

// reportCommits logs newly committed entries and role changes once per second.
func (s *Server) reportCommits() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	reported := 0
	var last raft.Status
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		entries := s.node.Log()
		for _, entry := range entries[reported:] {
			log.Printf("Node %d committed entry: %s", s.config.NodeID, entry)
		}
		reported = len(entries)

		status := s.node.Status()
		if status.State != last.State || status.Term != last.Term || status.LeaderID != last.LeaderID {
			log.Printf("Node %d is %s in term %d (leader %d)", status.ID, status.State, status.Term, status.LeaderID)
			last = status
		}
	}
}

func waitForSignal(srv *Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	srv.Stop()
}

// parsePeers parses "id=addr" pairs. IDs must cover 0..N-1 because a node's ID
// is its position in the cluster.
func parsePeers(peersStr string, nodeID int) (map[int]string, error) {
	peerMap := make(map[int]string)
	for _, p := range strings.Split(peersStr, ",") {
		parts := strings.Split(p, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s", p)
		}
		var pid int
		if _, err := fmt.Sscanf(parts[0], "%d", &pid); err != nil {
			return nil, fmt.Errorf("invalid peer ID: %s", parts[0])
		}
		if _, dup := peerMap[pid]; dup {
			return nil, fmt.Errorf("duplicate peer ID: %d", pid)
		}
		peerMap[pid] = parts[1]
	}

	for id := 0; id < len(peerMap); id++ {
		if _, ok := peerMap[id]; !ok {
			return nil, fmt.Errorf("peer IDs must be 0..%d, missing %d", len(peerMap)-1, id)
		}
	}
	if _, ok := peerMap[nodeID]; !ok {
		return nil, fmt.Errorf("my ID %d not found in peers list", nodeID)
	}
	return peerMap, nil
}

package sim

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/xmh1011/raft-sim/client"
	"github.com/xmh1011/raft-sim/param"
	"github.com/xmh1011/raft-sim/raft"
	"github.com/xmh1011/raft-sim/transport"
	"github.com/xmh1011/raft-sim/transport/inmemory"
)

var ErrInvalidClusterSize = errors.New("cluster size must be positive")

// Simulation 在同一进程内运行一个固定规模的集群，节点之间通过内存网络投递消息。
type Simulation struct {
	RunID string

	cfg     raft.Config
	nodes   []*raft.Node
	network *inmemory.Network
	started bool
}

// New 创建 n 个节点并把它们接入同一个内存网络。所有节点共享同一份 Cluster。
func New(n int, cfg raft.Config) (*Simulation, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidClusterSize, n)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulation{
		RunID:   uuid.NewString(),
		cfg:     cfg,
		nodes:   make([]*raft.Node, n),
		network: inmemory.NewNetwork(),
	}

	endpoints := make([]transport.Peer, n)
	for id := range s.nodes {
		node := raft.NewNode(id, cfg, nil)
		s.nodes[id] = node
		s.network.Register(id, node)
		endpoints[id] = s.network.Endpoint(id)
	}

	cluster := raft.NewCluster(endpoints...)
	for _, node := range s.nodes {
		node.SetCluster(cluster)
	}

	log.Printf("[Simulation] Run %s: created %d nodes", s.RunID, n)
	return s, nil
}

// Start 为每个节点启动主循环。
func (s *Simulation) Start() {
	if s.started {
		return
	}
	s.started = true
	for _, node := range s.nodes {
		go node.Run()
	}
	log.Printf("[Simulation] Run %s: started %d nodes", s.RunID, len(s.nodes))
}

// Stop 停止所有节点并等待它们的主循环退出。
func (s *Simulation) Stop() {
	for _, node := range s.nodes {
		node.Stop()
	}
	if !s.started {
		return
	}
	for _, node := range s.nodes {
		<-node.Done()
		log.Printf("[Simulation] Node %d closed", node.ID())
	}
}

// Nodes 返回全部节点，下标即节点 ID。
func (s *Simulation) Nodes() []*raft.Node {
	return s.nodes
}

// Network 返回节点所在的内存网络，用于断开或恢复节点。
func (s *Simulation) Network() *inmemory.Network {
	return s.network
}

// Leader 返回当前自认为是 Leader 的节点中任期最高的一个。
func (s *Simulation) Leader() (*raft.Node, bool) {
	var leader *raft.Node
	var term uint64
	for _, node := range s.nodes {
		status := node.Status()
		if status.State != param.Leader {
			continue
		}
		if leader == nil || status.Term > term {
			leader, term = node, status.Term
		}
	}
	return leader, leader != nil
}

// WaitForLeader 轮询直到出现 Leader 或 ctx 结束。
func (s *Simulation) WaitForLeader(ctx context.Context) (*raft.Node, error) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		if leader, ok := s.Leader(); ok {
			return leader, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", client.ErrNoLeader, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Client 返回一个面向本集群的客户端。单次尝试的等待时长取响应窗口的若干倍。
func (s *Simulation) Client() *client.Client {
	targets := make([]client.Target, len(s.nodes))
	for i, node := range s.nodes {
		targets[i] = node
	}
	c := client.NewClient(targets)
	c.SetAttemptTimeout(4*s.cfg.ResponseWindow + 4*s.cfg.TickInterval)
	return c
}

// Logs 返回每个节点已提交日志的副本。
func (s *Simulation) Logs() [][]param.LogEntry {
	logs := make([][]param.LogEntry, len(s.nodes))
	for i, node := range s.nodes {
		logs[i] = node.Log()
	}
	return logs
}

// Audit 检查各节点日志的一致性。应在 Stop 之后调用，否则结果只是某一时刻的快照。
func (s *Simulation) Audit() Report {
	report := Audit(s.Logs())
	report.RunID = s.RunID
	return report
}

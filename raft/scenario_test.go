package raft

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xmh1011/raft-sim/param"
	"github.com/xmh1011/raft-sim/transport"
	netmem "github.com/xmh1011/raft-sim/transport/inmemory"
)

// TestConcurrentCandidates_SameTerm 让两个节点在同一任期同时参选，
// 其余三个节点运行主循环并投票。每个投票者每个任期只投一票，所以恰好一个候选人胜出。
func TestConcurrentCandidates_SameTerm(t *testing.T) {
	for round := 0; round < 5; round++ {
		candidateCfg := testConfig()
		candidateCfg.ResponseWindow = 50 * time.Millisecond
		voterCfg := testConfig()
		// 投票者在测试期间不会自己参选。
		voterCfg.ElectionTimeoutBase = 10 * time.Second

		network := netmem.NewNetwork()
		nodes := make([]*Node, 5)
		endpoints := make([]transport.Peer, 5)
		for id := range nodes {
			cfg := voterCfg
			if id < 2 {
				cfg = candidateCfg
			}
			nodes[id] = NewNode(id, cfg, nil)
			network.Register(id, nodes[id])
			endpoints[id] = network.Endpoint(id)
		}
		cluster := NewCluster(endpoints...)
		for _, n := range nodes {
			n.SetCluster(cluster)
		}
		for _, n := range nodes[2:] {
			go n.Run()
		}

		var wg sync.WaitGroup
		won := make([]bool, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				won[i] = nodes[i].runElection()
			}(i)
		}
		wg.Wait()

		for _, n := range nodes[2:] {
			n.Stop()
			<-n.Done()
		}

		assert.Equal(t, uint64(1), nodes[0].currentTerm)
		assert.Equal(t, uint64(1), nodes[1].currentTerm)
		assert.False(t, won[0] && won[1], "round %d: two leaders elected for the same term", round)
		assert.True(t, won[0] || won[1], "round %d: three voters always give one candidate a majority", round)

		leaders := 0
		for _, n := range nodes[:2] {
			if n.state == param.Leader {
				leaders++
			}
		}
		assert.Equal(t, 1, leaders)
	}
}

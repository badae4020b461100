package raft

import (
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmh1011/raft-sim/param"
	"github.com/xmh1011/raft-sim/transport"
)

// testConfig 返回一个时间参数很短的配置，让测试在几十毫秒内完成。
func testConfig() Config {
	return Config{
		TickInterval:        2 * time.Millisecond,
		ResponseWindow:      20 * time.Millisecond,
		ElectionTimeoutBase: 50 * time.Millisecond,
		ElectionJitterStep:  10 * time.Millisecond,
		ElectionJitterSteps: 10,
		AckPolicy:           AckTally,
	}
}

// newTestNode 创建一个 ID 为 0 的节点，集群中其余 size-1 个位置都是 MockPeer。
// peers[0] 为 nil，对应节点自己。
func newTestNode(ctrl *gomock.Controller, size int, cfg Config) (*Node, []*transport.MockPeer) {
	n := NewNode(0, cfg, nil)
	peers := make([]*transport.MockPeer, size)
	handles := make([]transport.Peer, size)
	handles[0] = n
	for i := 1; i < size; i++ {
		peers[i] = transport.NewMockPeer(ctrl)
		handles[i] = peers[i]
	}
	n.SetCluster(NewCluster(handles...))
	return n, peers
}

// makeLeader 直接把节点置为指定任期的 Leader。
func makeLeader(n *Node, term uint64) {
	n.currentTerm = term
	n.state = param.Leader
	n.votedFor = n.id
	n.leaderID = n.id
}

func TestNewNode_InitialState(t *testing.T) {
	n := NewNode(3, testConfig(), nil)

	assert.Equal(t, 3, n.ID())
	assert.Equal(t, param.Follower, n.state, "nodes start as followers")
	assert.Equal(t, param.None, n.votedFor)
	assert.Equal(t, param.None, n.leaderID)
	assert.Zero(t, n.currentTerm)
	assert.Empty(t, n.Log())

	cfg := testConfig()
	assert.GreaterOrEqual(t, n.electionTimeout, cfg.ElectionTimeoutBase)
	assert.Less(t, n.electionTimeout, cfg.ElectionTimeoutBase+time.Duration(cfg.ElectionJitterSteps)*cfg.ElectionJitterStep)

	status := n.Status()
	assert.Equal(t, 3, status.ID)
	assert.Equal(t, param.Follower, status.State)
	assert.Equal(t, param.None, status.LeaderID)
}

func TestSubmit(t *testing.T) {
	n := NewNode(0, testConfig(), nil)

	assert.ErrorIs(t, n.Submit(""), ErrEmptyProposal)
	require.NoError(t, n.Submit("x"))

	queued := n.inbox.DrainAll()
	require.Len(t, queued, 1)
	assert.Equal(t, param.KindPropose, queued[0].Kind)
	assert.Equal(t, "x", queued[0].Payload.Data)
	assert.True(t, queued[0].FromClient())
}

// TestRunAndStop 验证单节点集群的主循环能选出自己并在 Stop 之后退出。
func TestRunAndStop(t *testing.T) {
	n := NewNode(0, testConfig(), nil)
	n.SetCluster(NewCluster(n))

	go n.Run()

	assert.Eventually(t, func() bool {
		return n.Status().State == param.Leader
	}, time.Second, 5*time.Millisecond, "a single node should elect itself")

	n.Stop()
	select {
	case <-n.Done():
	case <-time.After(time.Second):
		t.Fatal("node loop did not exit after Stop")
	}

	status := n.Status()
	assert.Equal(t, 0, status.LeaderID)
	assert.GreaterOrEqual(t, status.Term, uint64(1))
}

func TestRun_WithoutCluster(t *testing.T) {
	n := NewNode(0, testConfig(), nil)
	go n.Run()

	select {
	case <-n.Done():
	case <-time.After(time.Second):
		t.Fatal("a node without a cluster should refuse to run")
	}
}

func TestElectionDue(t *testing.T) {
	n := NewNode(0, testConfig(), nil)
	now := time.Now()

	n.electionDeadline = now.Add(time.Second)
	assert.False(t, n.electionDue(now), "deadline has not passed yet")

	n.electionDeadline = now.Add(-time.Millisecond)
	assert.True(t, n.electionDue(now), "a follower past its deadline should campaign")

	n.state = param.Leader
	assert.False(t, n.electionDue(now), "a leader never campaigns")
}

// TestTick_LeaderHeartbeat 验证空闲的 Leader 每个 tick 恰好发送一次心跳。
func TestTick_LeaderHeartbeat(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	n, peers := newTestNode(ctrl, 3, testConfig())
	makeLeader(n, 4)
	n.latestLSN = 7

	for i := 1; i < 3; i++ {
		peers[i].EXPECT().Deliver(gomock.Any()).DoAndReturn(func(msg param.Message) error {
			assert.Equal(t, param.KindAppendEntry, msg.Kind)
			assert.Equal(t, param.NewHeartbeat(7, 4), msg.Payload, "heartbeat keeps latestLSN unchanged")
			assert.Equal(t, uint64(4), msg.Term)
			return nil
		}).Times(2)
	}

	n.tick()
	n.tick()
	assert.Equal(t, uint64(7), n.latestLSN)
}

// TestTick_NoHeartbeatWhenEntrySent 验证本 tick 已经广播过条目时不再发送心跳。
func TestTick_NoHeartbeatWhenEntrySent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	n, peers := newTestNode(ctrl, 3, testConfig())
	makeLeader(n, 1)
	require.NoError(t, n.Submit("x"))

	for i := 1; i < 3; i++ {
		sender := i
		peers[i].EXPECT().Deliver(gomock.Any()).DoAndReturn(func(msg param.Message) error {
			assert.NotEqual(t, "", msg.Payload.Data, "no heartbeat may be sent in a tick that broadcast an entry")
			if msg.Kind == param.KindAppendEntry {
				_ = n.Deliver(param.NewMessage(param.KindAppendAck, msg.Term, msg.Payload, sender))
			}
			return nil
		}).AnyTimes()
	}

	n.tick()
	assert.Equal(t, []param.LogEntry{param.NewLogEntry(0, 1, "x")}, n.Log())
	assert.Equal(t, uint64(1), n.latestLSN)
}

// TestTick_FollowerStartsElection 验证超过截止时间的 Follower 在 tick 开始时参选。
func TestTick_FollowerStartsElection(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	n, peers := newTestNode(ctrl, 3, testConfig())
	n.electionDeadline = time.Now().Add(-time.Millisecond)

	for i := 1; i < 3; i++ {
		peers[i].EXPECT().Deliver(gomock.Any()).DoAndReturn(func(msg param.Message) error {
			assert.Equal(t, param.KindRequestVote, msg.Kind)
			return nil
		}).Times(1)
	}

	n.tick()
	assert.Equal(t, param.Candidate, n.state, "no votes were granted, node stays candidate")
	assert.Equal(t, uint64(1), n.currentTerm)
	assert.Equal(t, param.Candidate, n.Status().State, "status is published at the end of the tick")
}

func TestDispatch(t *testing.T) {
	t.Run("StaleMessageIsDropped", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		n, _ := newTestNode(ctrl, 3, testConfig())
		n.currentTerm = 5

		// 没有为 mock 设置期望：任何回复都会让测试失败。
		entry := param.NewLogEntry(0, 4, "old")
		n.dispatch(param.NewMessage(param.KindAppendEntry, 4, entry, 1))
		n.dispatch(param.NewMessage(param.KindRequestVote, 4, entry, 2))
		n.dispatch(param.NewMessage(param.KindCommit, 4, entry, 1))

		assert.Equal(t, uint64(5), n.currentTerm)
		assert.Empty(t, n.staged)
		assert.Equal(t, param.None, n.votedFor)
	})

	t.Run("HigherTermStepsDownLeader", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		n, peers := newTestNode(ctrl, 3, testConfig())
		makeLeader(n, 2)

		peers[1].EXPECT().Deliver(gomock.Any()).DoAndReturn(func(msg param.Message) error {
			assert.Equal(t, param.KindVoteGranted, msg.Kind)
			assert.Equal(t, uint64(3), msg.Term)
			return nil
		}).Times(1)

		n.dispatch(param.NewMessage(param.KindRequestVote, 3, param.NewHeartbeat(0, 3), 1))

		assert.Equal(t, param.Follower, n.state)
		assert.Equal(t, uint64(3), n.currentTerm)
		assert.Equal(t, 1, n.votedFor, "vote of the new term goes to the candidate")
	})

	t.Run("HigherTermAckStepsDownLeader", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		n, _ := newTestNode(ctrl, 3, testConfig())
		makeLeader(n, 2)

		n.dispatch(param.NewMessage(param.KindAppendAck, 9, param.NewHeartbeat(0, 9), 2))

		assert.Equal(t, param.Follower, n.state)
		assert.Equal(t, uint64(9), n.currentTerm)
		assert.Equal(t, param.None, n.votedFor)
		assert.Equal(t, param.None, n.leaderID)
	})

	t.Run("UnknownKindIsIgnored", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		n, _ := newTestNode(ctrl, 3, testConfig())
		sent := n.dispatch(param.Message{Kind: param.Kind(99), Term: 100, SenderID: 1})

		assert.False(t, sent)
		assert.Zero(t, n.currentTerm, "unknown messages must not influence the term")
	})

	t.Run("VoteGrantedOutsideElectionIsNoop", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		n, _ := newTestNode(ctrl, 3, testConfig())
		n.currentTerm = 1
		n.dispatch(param.NewMessage(param.KindVoteGranted, 1, param.NewHeartbeat(0, 1), 2))

		assert.Equal(t, param.Follower, n.state)
	})
}

// TestProcessInbox_FIFO 验证同一个 tick 内消息按到达顺序处理：先暂存再提交。
func TestProcessInbox_FIFO(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	n, peers := newTestNode(ctrl, 3, testConfig())
	peers[1].EXPECT().Deliver(gomock.Any()).Return(nil).Times(1)

	entry := param.NewLogEntry(0, 1, "x")
	_ = n.Deliver(param.NewMessage(param.KindAppendEntry, 1, entry, 1))
	_ = n.Deliver(param.NewMessage(param.KindCommit, 1, entry, 1))

	assert.False(t, n.processInbox(), "followers never broadcast entries")
	assert.Equal(t, []param.LogEntry{entry}, n.Log())
	assert.Equal(t, 1, n.leaderID)
}

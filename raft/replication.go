package raft

import (
	"fmt"
	"log"
	"time"

	"github.com/xmh1011/raft-sim/param"
)

// proposeEntry 由 Leader 调用，用于复制一条新条目或发送心跳。
// 主要负责：
//   - 心跳（Heartbeat）: 广播后立即返回，不等待确认。
//   - 日志复制（Log Replication）: 广播后阻塞一个响应窗口，统计邮箱中针对该条目的 AppendAck；
//     确认数（不含自己）严格超过集群规模的一半时广播 Commit，并把条目写入自己的日志。
//
// 达不到法定人数时返回 ErrQuorumNotReached，条目在本次尝试中被丢弃，是否重试由调用方决定。
func (n *Node) proposeEntry(entry param.LogEntry) error {
	if n.state != param.Leader {
		return ErrNotLeader
	}

	n.broadcast(param.NewMessage(param.KindAppendEntry, n.currentTerm, entry, n.id))
	if entry.IsHeartbeat() {
		return nil
	}

	// 留出时间让 Follower 在各自的 tick 中回复。
	time.Sleep(n.cfg.ResponseWindow)

	acks := n.countAcks(entry)
	if !n.cluster.IsMajority(acks) {
		return fmt.Errorf("entry %d got %d acks from a cluster of %d: %w", entry.Index, acks, n.cluster.Size(), ErrQuorumNotReached)
	}

	n.broadcast(param.NewMessage(param.KindCommit, n.currentTerm, entry, n.id))
	n.commit(entry)
	return nil
}

// countAcks 统计针对 entry 的确认：同一任期、同一序号、同一数据，每个 Follower 只计一次。
// 心跳的确认数据为空，永远不会被计入一条真实条目。
func (n *Node) countAcks(entry param.LogEntry) int {
	ackers := make(map[int]struct{})
	for _, msg := range n.inbox.Snapshot() {
		if msg.Kind != param.KindAppendAck || msg.SenderID == n.id || msg.Term != n.currentTerm {
			continue
		}
		if msg.Payload.Index == entry.Index && msg.Payload.Data == entry.Data {
			ackers[msg.SenderID] = struct{}{}
		}
	}
	return len(ackers)
}

// sendHeartbeat 广播一个空条目：序号沿用 latestLSN，不推进。
func (n *Node) sendHeartbeat() {
	if err := n.proposeEntry(param.NewHeartbeat(n.latestLSN, n.currentTerm)); err != nil {
		log.Printf("[Log Replication] Node %d failed to send heartbeat: %v", n.id, err)
	}
}

// handlePropose 处理一条提议。只有 Leader 会为它分配新的 LSN 并发起复制。
// 返回值表示本 tick 是否已经广播过条目（此时不再需要心跳）。
func (n *Node) handlePropose(msg param.Message) bool {
	if msg.Payload.IsHeartbeat() {
		return false
	}
	if n.state != param.Leader {
		log.Printf("[Client] Node %d is not leader (leader hint %d), dropping proposal %q", n.id, n.leaderID, msg.Payload.Data)
		return false
	}

	entry := param.NewLogEntry(n.latestLSN, n.currentTerm, msg.Payload.Data)
	n.latestLSN++
	if err := n.proposeEntry(entry); err != nil {
		log.Printf("[Log Replication] Node %d failed to commit entry %s: %v", n.id, entry, err)
	}
	return true
}

// handleAppendEntry 处理来自 Leader 的条目或心跳。任期已由 observeTerm 处理过。
func (n *Node) handleAppendEntry(msg param.Message) {
	switch n.state {
	case param.Leader:
		// 同一任期不会有两个 Leader 获得多数票，忽略。
		log.Printf("[Log Replication] Leader %d ignoring AppendEntry from node %d in the same term %d", n.id, msg.SenderID, msg.Term)
		return
	case param.Candidate:
		log.Printf("[State Change] Candidate %d found leader %d for term %d, becoming follower.", n.id, msg.SenderID, msg.Term)
		n.state = param.Follower
	}

	n.leaderID = msg.SenderID
	n.resetElectionTimer()

	ack := param.NewMessage(param.KindAppendAck, n.currentTerm, msg.Payload, n.id)
	n.send(msg.SenderID, ack)

	// 心跳不暂存。
	if !msg.Payload.IsHeartbeat() {
		n.staged[msg.Payload.Index] = msg.Payload
	}
}

// handleCommit 把已暂存的条目移入日志。没有暂存过的序号直接忽略。
func (n *Node) handleCommit(msg param.Message) {
	n.resetElectionTimer()

	index := msg.Payload.Index
	entry, ok := n.staged[index]
	if !ok {
		return
	}
	delete(n.staged, index)
	n.commit(entry)
}

// handleAppendAck 处理 Leader 收到的确认。
// AckTally 策略下确认已经在 proposeEntry 的响应窗口内统计过，这里无事可做；
// AckRepropose 策略下，每个携带数据的确认都会变成一条新的提议，投递到自己的邮箱，在之后的 tick 中处理。
func (n *Node) handleAppendAck(msg param.Message) {
	if n.state != param.Leader || n.cfg.AckPolicy != AckRepropose {
		return
	}
	if msg.Payload.IsHeartbeat() {
		return
	}
	proposal := param.NewMessage(param.KindPropose, n.currentTerm, param.LogEntry{Data: msg.Payload.Data}, n.id)
	n.inbox.Enqueue(proposal)
}

package raft

import (
	"github.com/xmh1011/raft-sim/param"
)

// processInbox 取出邮箱中的全部消息并按到达顺序逐条分发。
// 返回值表示本 tick 是否已经广播过一条真实条目。
// 节点被 Stop 后剩余的消息直接丢弃，每条提议都会阻塞一个响应窗口。
func (n *Node) processInbox() bool {
	entrySent := false
	for _, msg := range n.inbox.DrainAll() {
		if !n.alive.Load() {
			break
		}
		if n.dispatch(msg) {
			entrySent = true
		}
	}
	return entrySent
}

// dispatch 按消息类型分发一条消息。
// 未知类型直接忽略；过期任期的消息只跳过这一条，不影响本 tick 的其它处理。
func (n *Node) dispatch(msg param.Message) bool {
	switch msg.Kind {
	case param.KindRequestVote, param.KindVoteGranted, param.KindAppendEntry, param.KindAppendAck, param.KindCommit:
		if !n.observeTerm(msg) {
			return false
		}
	case param.KindPropose:
		// 提议不属于任何任期。
	default:
		return false
	}

	switch msg.Kind {
	case param.KindRequestVote:
		n.handleRequestVote(msg)
	case param.KindVoteGranted:
		// 选票已经在选举的响应窗口内统计过。
	case param.KindAppendEntry:
		n.handleAppendEntry(msg)
	case param.KindAppendAck:
		n.handleAppendAck(msg)
	case param.KindCommit:
		n.handleCommit(msg)
	case param.KindPropose:
		return n.handlePropose(msg)
	}
	return false
}

// observeTerm 在分发前处理消息携带的任期。
// 任期更高时先转为该任期的 Follower 并清空投票；任期更低时返回 false，消息被丢弃。
func (n *Node) observeTerm(msg param.Message) bool {
	if msg.Term < n.currentTerm {
		return false
	}
	if msg.Term > n.currentTerm {
		n.becomeFollower(msg.Term)
	}
	return true
}

package raft

import (
	"log"
	"time"

	"github.com/xmh1011/raft-sim/param"
)

// runElection 发起一轮选举并在响应窗口结束后计票。
// 当一个节点的选举截止时间已过，它会转变为 Candidate 状态并发起新一轮的选举。此函数负责：
// - 增加 currentTerm，投票给自己，重新抽取并重置选举超时。
// - 向集群中的其他所有节点广播 RequestVote。
// - 阻塞等待一个响应窗口，然后统计邮箱中本任期的 VoteGranted。
// 获得超过半数（包含自己）的选票则成为 Leader，否则保持 Candidate，等待下一次超时再试。
func (n *Node) runElection() bool {
	n.becomeCandidate()
	electionTerm := n.currentTerm

	request := param.NewMessage(param.KindRequestVote, electionTerm, n.lastEntryForVote(), n.id)
	n.broadcast(request)

	// 阻塞等待其它节点在各自的 tick 中处理请求并回复。
	time.Sleep(n.cfg.ResponseWindow)

	votes := n.countVotes(electionTerm)
	if n.cluster.IsMajority(votes) {
		n.becomeLeader()
		return true
	}
	log.Printf("[Election] Node %d lost election for term %d with %d/%d votes", n.id, electionTerm, votes, n.cluster.Size())
	return false
}

// becomeCandidate 将状态更新为 Candidate，增加当前任期号，并给自己投票。
func (n *Node) becomeCandidate() {
	n.state = param.Candidate
	n.currentTerm++
	n.votedFor = n.id
	n.leaderID = param.None
	// 每轮选举重新抽取超时，降低两个节点反复同时参选的概率。
	n.electionTimeout = n.cfg.drawElectionTimeout()
	n.resetElectionTimer()
	log.Printf("[Election] Node %d starts election for term %d", n.id, n.currentTerm)
}

// becomeLeader 封装了当选为 Leader 后的状态转换逻辑。
func (n *Node) becomeLeader() {
	log.Printf("[Election] Node %d elected as Leader for term %d", n.id, n.currentTerm)
	n.state = param.Leader
	n.leaderID = n.id
}

// lastEntryForVote 返回投票请求中携带的日志信息：最后一条已提交的条目；
// 日志为空时用 {latestLSN, currentTerm, ""} 代替。
func (n *Node) lastEntryForVote() param.LogEntry {
	if last, ok := n.store.LastEntry(); ok {
		return last
	}
	return param.NewHeartbeat(n.latestLSN, n.currentTerm)
}

// countVotes 统计本任期收到的选票，包括自己的一票。同一个投票者只计一次。
// 选票留在邮箱中，下一个 tick 被 DrainAll 取出后直接丢弃。
func (n *Node) countVotes(term uint64) int {
	voters := map[int]struct{}{n.id: {}}
	for _, msg := range n.inbox.Snapshot() {
		if msg.Kind == param.KindVoteGranted && msg.Term == term && msg.SenderID != n.id {
			voters[msg.SenderID] = struct{}{}
		}
	}
	return len(voters)
}

// handleRequestVote 处理一条未过期的投票请求。来自候选人的有效消息会重置选举计时器。
func (n *Node) handleRequestVote(msg param.Message) {
	n.resetElectionTimer()
	n.grantVote(msg)
}

// grantVote 按顺序执行投票规则，同意时回复 VoteGranted。
//  1. 本任期已经投过票，拒绝。
//  2. 候选人的任期低于自己，拒绝。
//  3. 候选人的任期高于自己，先采用它的任期。
//  4. 本地日志非空时，若本地最后一条日志的序号或任期领先于候选人通告的日志，拒绝。
//  5. 否则记录投票并只回复给候选人。
func (n *Node) grantVote(req param.Message) bool {
	candidateID := req.SenderID

	if n.votedFor != param.None {
		log.Printf("[RequestVote] Node %d denying vote for term %d to candidate %d: already voted for %d", n.id, n.currentTerm, candidateID, n.votedFor)
		return false
	}
	if req.Term < n.currentTerm {
		log.Printf("[RequestVote] Node %d denying vote to candidate %d: stale term %d < %d", n.id, candidateID, req.Term, n.currentTerm)
		return false
	}
	if req.Term > n.currentTerm {
		n.becomeFollower(req.Term)
	}
	if !n.isCandidateLogFresh(req.Payload) {
		log.Printf("[RequestVote] Node %d denying vote for term %d to candidate %d: candidate log %s is behind", n.id, n.currentTerm, candidateID, req.Payload)
		return false
	}

	log.Printf("[RequestVote] Node %d granting vote for term %d to candidate %d.", n.id, n.currentTerm, candidateID)
	n.votedFor = candidateID
	n.resetElectionTimer()

	reply := param.NewMessage(param.KindVoteGranted, n.currentTerm, param.NewHeartbeat(0, n.currentTerm), n.id)
	n.send(candidateID, reply)
	return true
}

// isCandidateLogFresh 是一个粗略的日志新旧检查，只比较最后一条日志，不做完整的日志匹配。
func (n *Node) isCandidateLogFresh(advertised param.LogEntry) bool {
	last, ok := n.store.LastEntry()
	if !ok {
		return true
	}
	return last.Index <= advertised.Index && last.Term <= advertised.Term
}

package raft

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/xmh1011/raft-sim/mailbox"
	"github.com/xmh1011/raft-sim/param"
	"github.com/xmh1011/raft-sim/storage"
	"github.com/xmh1011/raft-sim/storage/inmemory"
)

// Node 是集群中的一个节点。
// 除 inbox、store 和 status 之外的所有字段只由节点自己的主循环读写，
// 其它节点只能通过向 inbox 投递消息来影响它。
type Node struct {
	// id 是节点在集群列表中的下标
	id  int
	cfg Config

	// cluster 在 Run 之前通过 SetCluster 安装，之后只读
	cluster *Cluster
	// inbox 是唯一的跨节点同步点
	inbox *mailbox.Mailbox
	// store 保存已提交的日志
	store storage.LogStore

	// --- Raft 核心状态 ---
	state       param.State
	currentTerm uint64
	votedFor    int
	leaderID    int

	// --- 日志相关 ---
	staged    map[uint64]param.LogEntry // 已确认但尚未收到 Commit 的条目
	latestLSN uint64                    // 成为 Leader 后分配给下一条条目的序号

	// --- 选举相关 ---
	electionTimeout  time.Duration
	electionDeadline time.Time

	alive   atomic.Bool
	running atomic.Bool
	done    chan struct{}
	status  atomic.Pointer[Status]
}

// Status 是节点状态的只读快照，每个 tick 结束时发布一次。
type Status struct {
	ID        int
	State     param.State
	Term      uint64
	VotedFor  int
	LeaderID  int
	LatestLSN uint64
	LogLength int
	Staged    int
}

// NewNode 创建一个新的节点，初始为 Follower，没有已知的 Leader。
// store 为 nil 时使用内存存储。
func NewNode(id int, cfg Config, store storage.LogStore) *Node {
	if store == nil {
		store = inmemory.NewStorage()
	}
	n := &Node{
		id:       id,
		cfg:      cfg,
		inbox:    mailbox.New(),
		store:    store,
		state:    param.Follower,
		votedFor: param.None,
		leaderID: param.None,
		staged:   make(map[uint64]param.LogEntry),
		done:     make(chan struct{}),
	}
	n.electionTimeout = cfg.drawElectionTimeout()
	n.resetElectionTimer()
	n.alive.Store(true)
	n.publishStatus()
	return n
}

// SetCluster 安装集群的节点列表。必须在 Run 之前调用。
func (n *Node) SetCluster(cluster *Cluster) {
	n.cluster = cluster
}

// ID returns the node's index in the cluster.
func (n *Node) ID() int {
	return n.id
}

// Deliver 把消息放入节点的邮箱，使 Node 可以直接作为 transport.Peer 使用。
func (n *Node) Deliver(msg param.Message) error {
	n.inbox.Enqueue(msg)
	return nil
}

// Submit 向节点提交一条新数据。提议经过邮箱，由主循环在下一个 tick 处理；
// 只有 Leader 会真正发起复制，其它节点会丢弃它。
func (n *Node) Submit(data string) error {
	if data == "" {
		return ErrEmptyProposal
	}
	n.inbox.Enqueue(param.NewProposal(data))
	return nil
}

// Status 返回最近一次发布的状态快照。
func (n *Node) Status() Status {
	return *n.status.Load()
}

// Log 返回已提交日志的副本。主循环退出后日志不会再变化。
func (n *Node) Log() []param.LogEntry {
	return n.store.Entries()
}

// Run 运行节点的主循环，直到 Stop 被调用。
func (n *Node) Run() {
	if !n.running.CompareAndSwap(false, true) {
		log.Printf("[ERROR] Node %d is already running", n.id)
		return
	}
	defer close(n.done)

	if n.cluster == nil {
		log.Printf("[ERROR] Node %d has no cluster installed, refusing to run", n.id)
		return
	}

	log.Printf("[Node] Node %d is running with election timeout %s", n.id, n.electionTimeout)
	for n.alive.Load() {
		n.tick()
		time.Sleep(n.cfg.TickInterval)
	}
	log.Printf("[Node] Node %d stopped at term %d as %s", n.id, n.currentTerm, n.state)
}

// Stop 清除存活标志。主循环在当前消息处理完后退出，最多需要一个 tick 加一个响应窗口。
func (n *Node) Stop() {
	n.alive.Store(false)
}

// Done 返回一个在主循环退出后关闭的 channel。
func (n *Node) Done() <-chan struct{} {
	return n.done
}

// tick 执行一轮主循环：必要时发起选举、处理邮箱、Leader 空闲时发送心跳。
func (n *Node) tick() {
	if n.electionDue(time.Now()) {
		n.runElection()
	}

	entrySent := n.processInbox()

	if n.state == param.Leader && !entrySent {
		n.sendHeartbeat()
	}

	n.publishStatus()
}

// electionDue 判断是否应该参选。
// 尚无 Leader 和 Leader 失联两种情况都以随机化的截止时间为准，
// 这样刚启动的节点不会在同一个 tick 一起参选。Leader 从不参选。
func (n *Node) electionDue(now time.Time) bool {
	if n.state == param.Leader {
		return false
	}
	return !now.Before(n.electionDeadline)
}

// resetElectionTimer 从现在开始重新计算选举截止时间。
func (n *Node) resetElectionTimer() {
	n.electionDeadline = time.Now().Add(n.electionTimeout)
}

// becomeFollower 将节点的状态更新为指定新任期的 Follower。
func (n *Node) becomeFollower(newTerm uint64) {
	log.Printf("[State Change] Node %d received higher term %d. Updating term and becoming follower.", n.id, newTerm)
	n.currentTerm = newTerm
	n.state = param.Follower
	n.votedFor = param.None // 进入新任期时，重置投票记录。
	n.leaderID = param.None
}

// commit 把条目追加到已提交日志，并保证 latestLSN 不落后于已提交的序号。
func (n *Node) commit(entry param.LogEntry) {
	if err := n.store.Append(entry); err != nil {
		log.Printf("[ERROR] Node %d failed to append committed entry %s: %v", n.id, entry, err)
		return
	}
	if entry.Index+1 > n.latestLSN {
		n.latestLSN = entry.Index + 1
	}
	log.Printf("[Log Replication] Node %d committed entry %s", n.id, entry)
}

// send 向单个节点投递消息，失败只记录日志。
func (n *Node) send(to int, msg param.Message) {
	if err := n.cluster.SendTo(to, msg); err != nil {
		log.Printf("[Transport] Node %d failed to send %s to node %d: %v", n.id, msg.Kind, to, err)
	}
}

// broadcast 向其它所有节点投递消息。心跳的投递失败太频繁，不记录。
func (n *Node) broadcast(msg param.Message) {
	err := n.cluster.Broadcast(n.id, msg)
	if err != nil && !(msg.Kind == param.KindAppendEntry && msg.Payload.IsHeartbeat()) {
		log.Printf("[Transport] Node %d broadcast of %s was incomplete: %v", n.id, msg.Kind, err)
	}
}

func (n *Node) publishStatus() {
	n.status.Store(&Status{
		ID:        n.id,
		State:     n.state,
		Term:      n.currentTerm,
		VotedFor:  n.votedFor,
		LeaderID:  n.leaderID,
		LatestLSN: n.latestLSN,
		LogLength: n.store.Len(),
		Staged:    len(n.staged),
	})
}

// Package mailbox 提供节点的入站消息队列。
// 任意多个发送方可以并发地 Enqueue，邮箱的所有者在每个 tick 调用一次 DrainAll。
package mailbox

import (
	"sync"

	"github.com/xmh1011/raft-sim/param"
)

// Mailbox 是一个并发安全的 FIFO 队列。
type Mailbox struct {
	mu    sync.Mutex
	queue []param.Message
}

// New 创建一个空邮箱。
func New() *Mailbox {
	return &Mailbox{}
}

// Enqueue 在互斥锁保护下把消息追加到队尾。
func (m *Mailbox) Enqueue(msg param.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, msg)
}

// DrainAll 原子地取出当前队列中的全部消息，保持入队顺序。
// 邮箱为空时返回 nil。
func (m *Mailbox) DrainAll() []param.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil
	}
	drained := m.queue
	m.queue = nil
	return drained
}

// Snapshot 返回当前队列的副本，但不移除任何消息。
// 选举和复制在响应窗口结束后用它统计已经到达的回复，这些回复仍会在下一次 DrainAll 时被正常分发。
func (m *Mailbox) Snapshot() []param.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make([]param.Message, len(m.queue))
	copy(snapshot, m.queue)
	return snapshot
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

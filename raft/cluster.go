package raft

import (
	"errors"
	"fmt"

	"github.com/xmh1011/raft-sim/param"
	"github.com/xmh1011/raft-sim/transport"
)

// Cluster 是一个静态的、构造后只读的节点句柄列表。
// 节点在列表中的下标就是它的 ID；所有节点持有同一份列表，因此成员信息不需要加锁。
type Cluster struct {
	peers []transport.Peer
}

// NewCluster 按给定顺序创建集群，句柄列表会被复制一份。
func NewCluster(peers ...transport.Peer) *Cluster {
	return &Cluster{peers: append([]transport.Peer(nil), peers...)}
}

// Size 返回集群节点总数（包含自身）。
func (c *Cluster) Size() int {
	return len(c.peers)
}

// IsMajority 判断 count 是否严格超过集群规模的一半。
func (c *Cluster) IsMajority(count int) bool {
	return count > len(c.peers)/2
}

// SendTo 把消息投递到指定节点的邮箱。
func (c *Cluster) SendTo(id int, msg param.Message) error {
	if id < 0 || id >= len(c.peers) {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, id)
	}
	return c.peers[id].Deliver(msg)
}

// Broadcast 向除 from 以外的每个节点各投递一份消息。
// 某个节点投递失败不影响其它节点，所有错误合并后返回。
func (c *Cluster) Broadcast(from int, msg param.Message) error {
	var errs []error
	for id, peer := range c.peers {
		if id == from {
			continue
		}
		if err := peer.Deliver(msg); err != nil {
			errs = append(errs, fmt.Errorf("deliver %s to node %d: %w", msg.Kind, id, err))
		}
	}
	return errors.Join(errs...)
}

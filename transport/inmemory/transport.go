package inmemory

import (
	"fmt"
	"sync"

	"github.com/xmh1011/raft-sim/param"
	"github.com/xmh1011/raft-sim/transport"
)

// Network 是一个基于内存的网络，用于在单个进程内模拟节点间的邮箱投递。
// 每个节点通过 Register 注册自己的本地投递入口（通常是节点本身），
// 其它节点通过 Endpoint 拿到的句柄向它发送消息。
type Network struct {
	mu           sync.RWMutex
	sinks        map[int]transport.Peer // 节点 ID -> 本地投递入口
	disconnected map[int]bool           // 被断开的节点收不到任何消息
}

// NewNetwork 创建一个空的内存网络。
func NewNetwork() *Network {
	return &Network{
		sinks:        make(map[int]transport.Peer),
		disconnected: make(map[int]bool),
	}
}

// Register 将一个节点的投递入口注册到网络中。
func (n *Network) Register(id int, sink transport.Peer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks[id] = sink
}

// Endpoint 返回一个指向节点 id 的句柄。
// 句柄本身不持有目标节点，每次投递都会经过网络查找，因此 Disconnect 对已经分发出去的句柄同样生效。
func (n *Network) Endpoint(id int) transport.Peer {
	return &endpoint{network: n, id: id}
}

// Disconnect 把一个节点从网络中隔离：此后发给它的消息和它发出的消息全部丢弃。
func (n *Network) Disconnect(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnected[id] = true
}

// Connect 恢复一个被断开的节点。断开期间丢弃的消息不会补发。
func (n *Network) Connect(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.disconnected, id)
}

// getSink 根据发送方和目标 ID 查找对应的投递入口。
func (n *Network) getSink(from, id int) (transport.Peer, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.disconnected[id] {
		return nil, fmt.Errorf("node %d is disconnected: %w", id, transport.ErrPeerUnreachable)
	}
	if n.disconnected[from] {
		return nil, fmt.Errorf("sender %d is disconnected: %w", from, transport.ErrPeerUnreachable)
	}
	sink, ok := n.sinks[id]
	if !ok {
		return nil, fmt.Errorf("could not connect to node %d: %w", id, transport.ErrPeerUnreachable)
	}
	return sink, nil
}

type endpoint struct {
	network *Network
	id      int
}

// Deliver 把消息直接交给目标节点的投递入口，这是一次同步的内存调用。
func (e *endpoint) Deliver(msg param.Message) error {
	sink, err := e.network.getSink(msg.SenderID, e.id)
	if err != nil {
		return err
	}
	return sink.Deliver(msg)
}

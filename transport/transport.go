package transport

import (
	"errors"

	"github.com/xmh1011/raft-sim/param"
)

//go:generate mockgen -source=transport.go -destination=mock_peer.go -package=transport

var (
	ErrPeerUnreachable = errors.New("peer unreachable")
	ErrOutboxFull      = errors.New("outbox is full")
)

// Peer 是集群中一个节点的投递入口。
// 对本地节点来说 Deliver 就是把消息放进它的邮箱；对远程节点来说是一次异步的网络发送。
// Deliver 不能阻塞调用方的主循环。
type Peer interface {
	// Deliver 把消息的副本投递到目标节点的邮箱。
	Deliver(msg param.Message) error
}

// PeerFunc 允许用普通函数充当 Peer。
type PeerFunc func(msg param.Message) error

// Deliver calls f(msg).
func (f PeerFunc) Deliver(msg param.Message) error {
	return f(msg)
}

package tcp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/rpc"
	"sync"
	"time"

	"github.com/xmh1011/raft-sim/param"
	"github.com/xmh1011/raft-sim/transport"
)

const (
	deliverMethod      = "Delivery.Deliver"
	defaultOutboxSize  = 1024
	defaultDialTimeout = 5 * time.Second
)

// Ack 是 Deliver 调用的空回复。
type Ack struct{}

// Delivery 是通过 net/rpc 暴露的投递服务，把收到的消息交给本地节点的邮箱。
type Delivery struct {
	sink transport.Peer
}

// Deliver 是 RPC 方法：gob 解码出的消息直接投递给本地节点。
func (d *Delivery) Deliver(msg param.Message, _ *Ack) error {
	return d.sink.Deliver(msg)
}

// Transport 通过 TCP 和 net/rpc 在进程之间投递邮箱消息。
type Transport struct {
	localAddr string
	listener  net.Listener
	server    *rpc.Server

	mu        sync.RWMutex
	localID   int
	sink      transport.Peer
	resolvers map[int]string      // 节点 ID -> 地址
	remotes   map[int]*remotePeer // 缓存的远程发送者
	closed    bool
}

// NewTCPTransport 创建一个新的 Transport 实例，并开始在 localAddr 上监听。
// 连接在 Start 之后才会被接受。
func NewTCPTransport(localAddr string) (*Transport, error) {
	listener, err := net.Listen("tcp", localAddr)
	if err != nil {
		return nil, err
	}
	return &Transport{
		localAddr: listener.Addr().String(),
		listener:  listener,
		server:    rpc.NewServer(),
		localID:   param.None,
		resolvers: make(map[int]string),
		remotes:   make(map[int]*remotePeer),
	}, nil
}

// Addr 返回实际监听的地址。
func (t *Transport) Addr() string {
	return t.localAddr
}

// SetPeers 设置节点 ID 到地址的映射，必须在 Peer 之前调用。
func (t *Transport) SetPeers(peers map[int]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resolvers = make(map[int]string, len(peers))
	for id, addr := range peers {
		t.resolvers[id] = addr
	}
}

// Register 安装本地节点：收到的消息投递给 sink，Peer(id) 对本地 ID 返回 sink 本身。
func (t *Transport) Register(id int, sink transport.Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.localID = id
	t.sink = sink
}

// Start 注册投递服务并在后台接受连接。
func (t *Transport) Start() error {
	t.mu.RLock()
	sink := t.sink
	t.mu.RUnlock()
	if sink == nil {
		return errors.New("local node not registered")
	}

	if err := t.server.Register(&Delivery{sink: sink}); err != nil {
		return err
	}
	go t.acceptConnections()

	log.Printf("[TCPTransport] Listening on %s", t.localAddr)
	return nil
}

// acceptConnections 循环接受并处理新的 TCP 连接。
func (t *Transport) acceptConnections() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			// 如果监听器关闭了，就退出循环
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[TCPTransport] Accept error on %s: %v", t.localAddr, err)
			continue
		}
		// 为每个连接启动一个新的 goroutine 来提供 RPC 服务
		go t.server.ServeConn(conn)
	}
}

// Close 关闭监听器和所有远程发送者。
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for _, p := range t.remotes {
		p.close()
	}
	t.remotes = make(map[int]*remotePeer)
	return t.listener.Close()
}

// Peer 返回节点 id 的投递句柄。
func (t *Transport) Peer(id int) transport.Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id == t.localID && t.sink != nil {
		return t.sink
	}
	if p, ok := t.remotes[id]; ok {
		return p
	}
	addr, ok := t.resolvers[id]
	if !ok || t.closed {
		return transport.PeerFunc(func(param.Message) error {
			return fmt.Errorf("could not connect to node %d: %w", id, transport.ErrPeerUnreachable)
		})
	}

	p := newRemotePeer(id, addr, defaultOutboxSize)
	go p.run()
	t.remotes[id] = p
	return p
}

// Peers 按顺序返回节点 0..n-1 的投递句柄。
func (t *Transport) Peers(n int) []transport.Peer {
	peers := make([]transport.Peer, n)
	for id := range peers {
		peers[id] = t.Peer(id)
	}
	return peers
}

// Send 向 addr 上的节点同步投递一条消息，供集群外部的调用方使用。
func Send(ctx context.Context, addr string, msg param.Message) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	client := rpc.NewClient(conn)
	defer client.Close()

	call := client.Go(deliverMethod, msg, &Ack{}, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-call.Done:
		if call.Error != nil {
			return fmt.Errorf("deliver %s to %s: %w", msg.Kind, addr, call.Error)
		}
		return nil
	}
}

// remotePeer 用一个 goroutine 串行发送，保证同一发送方的消息按顺序到达。
type remotePeer struct {
	id   int
	addr string

	outbox    chan param.Message
	done      chan struct{}
	closeOnce sync.Once

	client *rpc.Client // 只由 run 所在的 goroutine 使用
}

func newRemotePeer(id int, addr string, outboxSize int) *remotePeer {
	return &remotePeer{
		id:     id,
		addr:   addr,
		outbox: make(chan param.Message, outboxSize),
		done:   make(chan struct{}),
	}
}

// Deliver 把消息放入发送队列，不阻塞调用方。
func (p *remotePeer) Deliver(msg param.Message) error {
	select {
	case <-p.done:
		return fmt.Errorf("node %d: %w", p.id, transport.ErrPeerUnreachable)
	default:
	}
	select {
	case p.outbox <- msg:
		return nil
	default:
		return fmt.Errorf("node %d: %w", p.id, transport.ErrOutboxFull)
	}
}

func (p *remotePeer) run() {
	defer func() {
		if p.client != nil {
			p.client.Close()
		}
	}()
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.outbox:
			if err := p.remoteCall(msg); err != nil && !(msg.Kind == param.KindAppendEntry && msg.Payload.IsHeartbeat()) {
				log.Printf("[TCPTransport] Failed to deliver %s to node %d at %s: %v", msg.Kind, p.id, p.addr, err)
			}
		}
	}
}

// remoteCall 发送一条消息，连接失效时丢弃缓存的客户端，下一条消息重新建立连接。
func (p *remotePeer) remoteCall(msg param.Message) error {
	if p.client == nil {
		conn, err := net.DialTimeout("tcp", p.addr, defaultDialTimeout)
		if err != nil {
			return err
		}
		p.client = rpc.NewClient(conn)
	}

	err := p.client.Call(deliverMethod, msg, &Ack{})
	if errors.Is(err, rpc.ErrShutdown) || isNetError(err) {
		p.client.Close()
		p.client = nil
	}
	return err
}

func isNetError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (p *remotePeer) close() {
	p.closeOnce.Do(func() { close(p.done) })
}

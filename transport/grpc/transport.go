package grpc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xmh1011/raft-sim/param"
	"github.com/xmh1011/raft-sim/transport"
)

const (
	defaultOutboxSize  = 1024
	defaultSendTimeout = 2 * time.Second
)

// Transport delivers mailbox messages between processes over gRPC.
// Incoming messages are decoded and handed to the registered local sink;
// outgoing messages go through one remotePeer per target.
type Transport struct {
	listener  net.Listener
	localAddr string

	localID    int
	sink       transport.Peer
	grpcServer *grpc.Server

	mu        sync.RWMutex
	resolvers map[int]string
	remotes   map[int]*remotePeer
	closed    bool

	outboxSize  int
	sendTimeout time.Duration
}

// NewTransport creates a new gRPC Transport listening on listenAddr.
func NewTransport(listenAddr string) (*Transport, error) {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}

	return &Transport{
		listener:    listener,
		localAddr:   listener.Addr().String(),
		localID:     param.None,
		grpcServer:  grpc.NewServer(),
		resolvers:   make(map[int]string),
		remotes:     make(map[int]*remotePeer),
		outboxSize:  defaultOutboxSize,
		sendTimeout: defaultSendTimeout,
	}, nil
}

// Addr returns the local address.
func (t *Transport) Addr() string {
	return t.localAddr
}

// SetPeers sets the peer resolvers. It must be called before Peer hands out
// handles; handles already created keep their address.
func (t *Transport) SetPeers(peers map[int]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resolvers = make(map[int]string, len(peers))
	for id, addr := range peers {
		t.resolvers[id] = addr
	}
}

// Register installs the local node. Messages arriving over the wire are
// delivered to sink, and Peer(id) returns sink itself.
func (t *Transport) Register(id int, sink transport.Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.localID = id
	t.sink = sink
}

// Start starts the gRPC server.
func (t *Transport) Start() error {
	t.mu.RLock()
	registered := t.sink != nil
	t.mu.RUnlock()
	if !registered {
		return errors.New("local node not registered")
	}

	RegisterDeliveryServer(t.grpcServer, t)

	go func() {
		if err := t.grpcServer.Serve(t.listener); err != nil {
			log.Printf("[GRPCTransport] Server stopped: %v", err)
		}
	}()

	log.Printf("[GRPCTransport] Service started on %s", t.localAddr)
	return nil
}

// Close stops the gRPC server and every outgoing peer.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.grpcServer.Stop()
	// Stop only closes listeners that Serve has taken over.
	_ = t.listener.Close()

	var errs []error
	for _, p := range t.remotes {
		if err := p.close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.remotes = make(map[int]*remotePeer)
	return errors.Join(errs...)
}

// Peer returns the delivery handle for node id. The local id maps to the
// registered sink; every other id maps to a buffered remote sender.
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
	if !ok {
		return transport.PeerFunc(func(param.Message) error {
			return fmt.Errorf("address not found for node %d: %w", id, transport.ErrPeerUnreachable)
		})
	}
	if t.closed {
		return transport.PeerFunc(func(param.Message) error {
			return fmt.Errorf("transport closed: %w", transport.ErrPeerUnreachable)
		})
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Printf("[GRPCTransport] Failed to create client for node %d at %s: %v", id, addr, err)
		return transport.PeerFunc(func(param.Message) error {
			return fmt.Errorf("node %d at %s: %w", id, addr, transport.ErrPeerUnreachable)
		})
	}

	p := newRemotePeer(id, addr, conn, t.outboxSize, t.sendTimeout)
	go p.run()
	t.remotes[id] = p
	return p
}

// Peers returns handles for node ids 0..n-1, in order, ready for raft.NewCluster.
func (t *Transport) Peers(n int) []transport.Peer {
	peers := make([]transport.Peer, n)
	for id := range peers {
		peers[id] = t.Peer(id)
	}
	return peers
}

// --- Server side implementation ---

// Deliver implements DeliveryServer.
func (t *Transport) Deliver(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	msg, err := decodeMessage(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	t.mu.RLock()
	sink := t.sink
	t.mu.RUnlock()
	if sink == nil {
		return nil, status.Error(codes.Unavailable, "local node not registered")
	}

	if err := sink.Deliver(msg); err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &emptypb.Empty{}, nil
}

// Send delivers a single message to the node listening on addr and waits for
// the server to accept it. It is meant for callers outside the cluster.
func Send(ctx context.Context, addr string, msg param.Message) error {
	req, err := encodeMessage(msg)
	if err != nil {
		return err
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if err := invokeDeliver(ctx, conn, req); err != nil {
		return fmt.Errorf("deliver %s to %s: %w", msg.Kind, addr, err)
	}
	return nil
}

// --- Client side implementation ---

// remotePeer sends messages to one remote node from a single goroutine so
// that messages from this process arrive in the order they were delivered.
type remotePeer struct {
	id      int
	addr    string
	conn    *grpc.ClientConn
	timeout time.Duration

	outbox    chan param.Message
	done      chan struct{}
	closeOnce sync.Once
}

func newRemotePeer(id int, addr string, conn *grpc.ClientConn, outboxSize int, timeout time.Duration) *remotePeer {
	return &remotePeer{
		id:      id,
		addr:    addr,
		conn:    conn,
		timeout: timeout,
		outbox:  make(chan param.Message, outboxSize),
		done:    make(chan struct{}),
	}
}

// Deliver queues msg without blocking the caller.
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
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.outbox:
			if err := p.send(msg); err != nil && !(msg.Kind == param.KindAppendEntry && msg.Payload.IsHeartbeat()) {
				log.Printf("[GRPCTransport] Failed to deliver %s to node %d at %s: %v", msg.Kind, p.id, p.addr, err)
			}
		}
	}
}

func (p *remotePeer) send(msg param.Message) error {
	req, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return invokeDeliver(ctx, p.conn, req)
}

func (p *remotePeer) close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		if p.conn != nil {
			err = p.conn.Close()
		}
	})
	return err
}

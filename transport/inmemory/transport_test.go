package inmemory

import (
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"github.com/xmh1011/raft-sim/param"
	"github.com/xmh1011/raft-sim/transport"
)

func TestNetwork(t *testing.T) {
	t.Run("Register and deliver", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		network := NewNetwork()
		sink := transport.NewMockPeer(ctrl)
		network.Register(1, sink)

		msg := param.NewMessage(param.KindAppendEntry, 3, param.NewHeartbeat(0, 3), 0)
		sink.EXPECT().Deliver(msg).Return(nil).Times(1)

		err := network.Endpoint(1).Deliver(msg)
		assert.NoError(t, err, "delivery to a registered node should succeed")
	})

	t.Run("Deliver to unknown node", func(t *testing.T) {
		network := NewNetwork()
		err := network.Endpoint(42).Deliver(param.Message{})
		assert.ErrorIs(t, err, transport.ErrPeerUnreachable)
		assert.Contains(t, err.Error(), "could not connect to node 42")
	})

	t.Run("Disconnect drops messages until Connect", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		network := NewNetwork()
		sink := transport.NewMockPeer(ctrl)
		network.Register(2, sink)
		handle := network.Endpoint(2)

		network.Disconnect(2)
		err := handle.Deliver(param.Message{Kind: param.KindCommit})
		assert.ErrorIs(t, err, transport.ErrPeerUnreachable, "disconnected node must not receive messages")

		network.Connect(2)
		sink.EXPECT().Deliver(gomock.Any()).Return(nil).Times(1)
		assert.NoError(t, handle.Deliver(param.Message{Kind: param.KindCommit}))
	})

	t.Run("Sink error is propagated", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		network := NewNetwork()
		sink := transport.NewMockPeer(ctrl)
		network.Register(3, sink)
		expectedErr := errors.New("mock delivery failure")
		sink.EXPECT().Deliver(gomock.Any()).Return(expectedErr)

		err := network.Endpoint(3).Deliver(param.Message{})
		assert.Equal(t, expectedErr, err)
	})

	t.Run("Disconnected sender cannot reach others", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		network := NewNetwork()
		sink := transport.NewMockPeer(ctrl)
		network.Register(1, sink)
		network.Disconnect(4)

		err := network.Endpoint(1).Deliver(param.NewMessage(param.KindRequestVote, 9, param.NewHeartbeat(0, 9), 4))
		assert.ErrorIs(t, err, transport.ErrPeerUnreachable)
		assert.Contains(t, err.Error(), "sender 4 is disconnected")

		// 来自集群外部的消息不受影响。
		sink.EXPECT().Deliver(gomock.Any()).Return(nil).Times(1)
		assert.NoError(t, network.Endpoint(1).Deliver(param.NewProposal("x")))
	})
}

package raft

import "errors"

var (
	ErrQuorumNotReached = errors.New("quorum not reached")
	ErrNotLeader        = errors.New("node is not the leader")
	ErrUnknownPeer      = errors.New("unknown peer")
	ErrEmptyProposal    = errors.New("proposal data must not be empty")
	ErrInvalidConfig    = errors.New("invalid config")
)

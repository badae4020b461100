package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/xmh1011/raft-sim/param"
	"github.com/xmh1011/raft-sim/raft"
)

//go:generate mockgen -source=client.go -destination=mock_target.go -package=client

var ErrNoLeader = errors.New("no leader available")

const (
	defaultAttemptTimeout = time.Second
	defaultRetryInterval  = 100 * time.Millisecond
	pollInterval          = 10 * time.Millisecond
)

// Target 是客户端可以提交数据的节点，*raft.Node 满足该接口。
type Target interface {
	ID() int
	Status() raft.Status
	Submit(data string) error
	Log() []param.LogEntry
}

var _ Target = (*raft.Node)(nil)

// clientAction 定义了客户端在完成一次尝试后应采取的下一步动作。
type clientAction int

const (
	actionSuccess clientAction = iota // 动作：成功，可以返回结果
	actionFail                        // 动作：失败，应终止操作
	actionRetry                       // 动作：重试，应继续循环
)

// Client 封装了向集群提交数据的逻辑：寻找 Leader、提交、等待提交完成，失败时重试。
type Client struct {
	clientID    string         // 客户端的唯一ID，只用于日志
	sequenceNum int64          // 当前请求的序列号
	targets     map[int]Target // 集群中所有节点的 ID -> 节点
	leaderHint  int            // 当前已知的 Leader ID

	attemptTimeout time.Duration // 单次尝试等待提交的时长
	retryInterval  time.Duration
}

// NewClient 创建一个新的客户端实例。
func NewClient(targets []Target) *Client {
	byID := make(map[int]Target, len(targets))
	for _, t := range targets {
		byID[t.ID()] = t
	}
	return &Client{
		clientID:       uuid.NewString(),
		targets:        byID,
		leaderHint:     param.None, // 初始时不知道谁是 Leader
		attemptTimeout: defaultAttemptTimeout,
		retryInterval:  defaultRetryInterval,
	}
}

// SetAttemptTimeout 设置单次尝试等待条目被提交的时长，应大于节点的响应窗口。
func (c *Client) SetAttemptTimeout(d time.Duration) {
	c.attemptTimeout = d
}

// SendCommand 把 data 提交给集群，直到它出现在 Leader 的已提交日志中，或 ctx 结束。
// 提议失败的条目会被 Leader 丢弃，所以超时后向当前 Leader 重新提交是安全的；
// 极少数情况下迟到的提交会让同一数据出现两次。
func (c *Client) SendCommand(ctx context.Context, data string) (param.LogEntry, error) {
	if data == "" {
		return param.LogEntry{}, raft.ErrEmptyProposal
	}
	c.sequenceNum++
	requestID := uuid.NewString()
	lastErr := ErrNoLeader

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Client] Command %s (seq:%d) gave up: %v", requestID, c.sequenceNum, ctx.Err())
			return param.LogEntry{}, fmt.Errorf("command (seq:%d): %w: %w", c.sequenceNum, lastErr, ctx.Err())
		default:
		}

		entry, action, err := c.attemptOnce(ctx, requestID, data)
		switch action {
		case actionSuccess:
			return entry, nil
		case actionFail:
			return param.LogEntry{}, err
		case actionRetry:
			lastErr = err
			select {
			case <-ctx.Done():
			case <-time.After(c.retryInterval):
			}
		}
	}
}

// attemptOnce 负责执行单次提交尝试。
func (c *Client) attemptOnce(ctx context.Context, requestID, data string) (param.LogEntry, clientAction, error) {
	target, ok := c.selectTargetNode()
	if !ok {
		log.Printf("[Client] No leader known for command %s (seq:%d). Retrying...", requestID, c.sequenceNum)
		return param.LogEntry{}, actionRetry, ErrNoLeader
	}

	log.Printf("[Client] Sending command %s (seq:%d) to node %d", requestID, c.sequenceNum, target.ID())
	before := len(target.Log())
	err := target.Submit(data)
	if err != nil {
		return c.decideNextAction(target.ID(), param.LogEntry{}, false, err)
	}

	entry, committed := c.waitForCommit(ctx, target, before, data)
	return c.decideNextAction(target.ID(), entry, committed, nil)
}

// waitForCommit 轮询目标节点的已提交日志，寻找 before 之后数据等于 data 的条目。
// 目标不再是 Leader 时提前返回。
func (c *Client) waitForCommit(ctx context.Context, target Target, before int, data string) (param.LogEntry, bool) {
	deadline := time.Now().Add(c.attemptTimeout)
	for time.Now().Before(deadline) {
		entries := target.Log()
		for i := before; i < len(entries); i++ {
			if entries[i].Data == data {
				return entries[i], true
			}
		}
		if target.Status().State != param.Leader {
			return param.LogEntry{}, false
		}
		select {
		case <-ctx.Done():
			return param.LogEntry{}, false
		case <-time.After(pollInterval):
		}
	}
	return param.LogEntry{}, false
}

// selectTargetNode 选择提交的目标：优先使用已知的 Leader，
// 否则在所有自认为是 Leader 的节点中选择任期最高的一个。
func (c *Client) selectTargetNode() (Target, bool) {
	if t, ok := c.targets[c.leaderHint]; ok && t.Status().State == param.Leader {
		return t, true
	}

	var best Target
	var bestTerm uint64
	for _, t := range c.targets {
		status := t.Status()
		if status.State != param.Leader {
			continue
		}
		if best == nil || status.Term > bestTerm {
			best, bestTerm = t, status.Term
		}
	}
	if best == nil {
		c.leaderHint = param.None
		return nil, false
	}
	c.leaderHint = best.ID()
	return best, true
}

// decideNextAction 封装了处理一次尝试结果的决策逻辑。
func (c *Client) decideNextAction(targetNodeID int, entry param.LogEntry, committed bool, err error) (param.LogEntry, clientAction, error) {
	if errors.Is(err, raft.ErrEmptyProposal) {
		return param.LogEntry{}, actionFail, err
	}
	if err != nil {
		log.Printf("[Client] Error submitting to node %d: %v. Retrying...", targetNodeID, err)
		c.leaderHint = param.None
		return param.LogEntry{}, actionRetry, err
	}

	if committed {
		log.Printf("[Client] Command (seq:%d) committed as %s.", c.sequenceNum, entry)
		return entry, actionSuccess, nil
	}

	log.Printf("[Client] Command (seq:%d) was not committed by node %d. Retrying...", c.sequenceNum, targetNodeID)
	c.leaderHint = param.None
	return param.LogEntry{}, actionRetry, raft.ErrQuorumNotReached
}

package param

import (
	"fmt"
	"time"
)

// Kind 标识一条消息的类型，节点的主循环按类型分发。
type Kind int

const (
	KindUnknown     Kind = iota
	KindRequestVote      // 候选人请求投票，Payload 为候选人最后一条日志
	KindVoteGranted      // 投票者同意投票，只发给候选人
	KindAppendEntry      // Leader 广播条目或心跳
	KindAppendAck        // Follower 确认收到条目，回显条目的 Index/Term/Data
	KindCommit           // Leader 通知提交某个已暂存的条目
	KindPropose          // 请求 Leader 为 Payload.Data 分配新条目并发起复制
)

var kindNames = map[Kind]string{
	KindRequestVote: "RequestVote",
	KindVoteGranted: "VoteGranted",
	KindAppendEntry: "AppendEntry",
	KindAppendAck:   "AppendAck",
	KindCommit:      "Commit",
	KindPropose:     "Propose",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind 是 String 的逆操作，未知名称返回 KindUnknown。
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindUnknown
}

// ClientID 是集群外部发送者（客户端、命令行工具）使用的 SenderID。
const ClientID = -1

// Message 是节点之间通过邮箱交换的唯一数据结构。
// 消息按值投递，投递后发送方和接收方各持一份副本，互不影响。
type Message struct {
	Kind     Kind      // 消息类型
	Term     uint64    // 发送方发送时所处的任期
	Payload  LogEntry  // 消息携带的日志条目
	SenderID int       // 发送方在集群中的下标
	SentAt   time.Time // 发送时间
}

// NewMessage creates a new Message stamped with the current time.
func NewMessage(kind Kind, term uint64, payload LogEntry, senderID int) Message {
	return Message{
		Kind:     kind,
		Term:     term,
		Payload:  payload,
		SenderID: senderID,
		SentAt:   time.Now(),
	}
}

// NewProposal 创建一条来自集群外部的提议消息。
func NewProposal(data string) Message {
	return NewMessage(KindPropose, 0, LogEntry{Data: data}, ClientID)
}

// FromClient reports whether the message originated outside the cluster.
func (m Message) FromClient() bool {
	return m.SenderID == ClientID
}

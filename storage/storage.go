package storage

import (
	"github.com/xmh1011/raft-sim/param"
)

// LogStore 保存节点已经提交的日志条目。
// 日志只追加、不截断、不压缩；写入方只有节点自己的主循环，
// 读取方可以是任意观察者（测试、模拟器的审计），因此实现必须是并发安全的。
type LogStore interface {
	// Append 追加一条已提交的条目。
	Append(entry param.LogEntry) error

	// Entries 返回全部已提交条目的副本，按提交顺序排列。
	Entries() []param.LogEntry

	// LastEntry 返回最后一条已提交条目；日志为空时第二个返回值为 false。
	LastEntry() (param.LogEntry, bool)

	// Len 返回已提交条目的数量。
	Len() int
}

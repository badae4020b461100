package param

import "fmt"

// LogEntry 表示复制日志中的一条记录。
// Data 为空的条目是心跳占位符，只用于宣示领导地位，永远不会被提交。
type LogEntry struct {
	Index uint64 // 日志序号（LSN），由 Leader 分配
	Term  uint64 // 条目被提议时 Leader 所在的任期
	Data  string // 应用数据，空字符串表示心跳
}

// NewLogEntry creates a new LogEntry.
func NewLogEntry(index, term uint64, data string) LogEntry {
	return LogEntry{
		Index: index,
		Term:  term,
		Data:  data,
	}
}

// NewHeartbeat 创建一个心跳条目：沿用当前 LSN，不推进序号。
func NewHeartbeat(index, term uint64) LogEntry {
	return LogEntry{Index: index, Term: term}
}

// IsHeartbeat reports whether the entry carries no application data.
func (e LogEntry) IsHeartbeat() bool {
	return e.Data == ""
}

func (e LogEntry) String() string {
	return fmt.Sprintf("{index=%d term=%d data=%q}", e.Index, e.Term, e.Data)
}

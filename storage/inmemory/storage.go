package inmemory

import (
	"errors"
	"sync"

	"github.com/xmh1011/raft-sim/param"
)

var ErrIndexOutOfBounds = errors.New("index is out of bounds")

// Storage 是 storage.LogStore 的一个线程安全的内存实现。
// 日志从位置 0 开始编号，位置与条目自身的 Index 无关：
// 一次失败的提议会消耗一个 LSN，所以已提交条目的 Index 可能不连续。
type Storage struct {
	mu  sync.RWMutex
	log []param.LogEntry
}

// NewStorage 创建一个新的内存存储实例。
func NewStorage() *Storage {
	return &Storage{}
}

func (s *Storage) Append(entry param.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, entry)
	return nil
}

func (s *Storage) Entries() []param.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]param.LogEntry, len(s.log))
	copy(entries, s.log)
	return entries
}

func (s *Storage) LastEntry() (param.LogEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.log) == 0 {
		return param.LogEntry{}, false
	}
	return s.log[len(s.log)-1], true
}

// At 返回日志中第 pos 个位置上的条目。
func (s *Storage) At(pos int) (param.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pos < 0 || pos >= len(s.log) {
		return param.LogEntry{}, ErrIndexOutOfBounds
	}
	return s.log[pos], nil
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

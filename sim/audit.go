package sim

import (
	"fmt"
	"io"
	"strings"

	"github.com/xmh1011/raft-sim/param"
)

// Field 标识一处不一致出现在条目的哪个部分。
type Field string

const (
	FieldMissing Field = "missing"
	FieldIndex   Field = "index"
	FieldTerm    Field = "term"
	FieldData    Field = "data"
)

// Mismatch 描述某个节点在某个日志位置上与参考节点的差异。
// 参考节点是该位置上第一个拥有条目的节点。
type Mismatch struct {
	Position  int
	Node      int
	Reference int
	Field     Field
	Got       string
	Want      string
}

func (m Mismatch) String() string {
	if m.Field == FieldMissing {
		return fmt.Sprintf("MISMATCH: Node %d is missing log entry at index %d (present in node %d)", m.Node, m.Position, m.Reference)
	}
	return fmt.Sprintf("MISMATCH at log position %d: Node %d has %s=%s, but node %d has %s=%s",
		m.Position, m.Node, m.Field, m.Got, m.Reference, m.Field, m.Want)
}

// Report 是一次日志一致性检查的结果。
type Report struct {
	RunID      string
	LogSizes   []int
	MaxLen     int
	Mismatches []Mismatch
}

// Consistent reports whether no mismatch was found.
func (r Report) Consistent() bool {
	return len(r.Mismatches) == 0
}

// Audit 逐个位置比较所有节点的日志：条目的序号、任期和数据都必须一致，
// 比参考节点短的日志在缺失的位置上记为不一致。
func Audit(logs [][]param.LogEntry) Report {
	report := Report{LogSizes: make([]int, len(logs))}
	for i, entries := range logs {
		report.LogSizes[i] = len(entries)
		report.MaxLen = max(report.MaxLen, len(entries))
	}

	for pos := 0; pos < report.MaxLen; pos++ {
		ref := -1
		for i, entries := range logs {
			if pos < len(entries) {
				ref = i
				break
			}
		}
		if ref < 0 {
			continue
		}
		want := logs[ref][pos]

		for i, entries := range logs {
			if i == ref {
				continue
			}
			if pos >= len(entries) {
				report.Mismatches = append(report.Mismatches, Mismatch{Position: pos, Node: i, Reference: ref, Field: FieldMissing})
				continue
			}
			report.Mismatches = append(report.Mismatches, compareEntries(pos, i, ref, entries[pos], want)...)
		}
	}
	return report
}

func compareEntries(pos, node, ref int, got, want param.LogEntry) []Mismatch {
	var out []Mismatch
	if got.Index != want.Index {
		out = append(out, Mismatch{pos, node, ref, FieldIndex, fmt.Sprint(got.Index), fmt.Sprint(want.Index)})
	}
	if got.Term != want.Term {
		out = append(out, Mismatch{pos, node, ref, FieldTerm, fmt.Sprint(got.Term), fmt.Sprint(want.Term)})
	}
	if got.Data != want.Data {
		out = append(out, Mismatch{pos, node, ref, FieldData, fmt.Sprintf("%q", got.Data), fmt.Sprintf("%q", want.Data)})
	}
	return out
}

// Write 以文本形式输出报告。
func (r Report) Write(w io.Writer) error {
	_, err := io.WriteString(w, r.String())
	return err
}

func (r Report) String() string {
	var b strings.Builder
	b.WriteString("=== Log Consistency Check ===\n")
	if r.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", r.RunID)
	}
	fmt.Fprintf(&b, "Max log size: %d\n", r.MaxLen)
	for i, size := range r.LogSizes {
		fmt.Fprintf(&b, "Node %d log size: %d\n", i, size)
	}
	for _, m := range r.Mismatches {
		b.WriteString(m.String())
		b.WriteByte('\n')
	}
	if r.Consistent() {
		b.WriteString("SUCCESS: All node logs are consistent!\n")
	} else {
		b.WriteString("FAILURE: Log inconsistencies detected!\n")
	}
	b.WriteString("=== End Log Check ===\n")
	return b.String()
}

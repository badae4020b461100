package param

// State 定义节点的角色（Consensus Module State）
type State int

const (
	Follower State = iota
	Candidate
	Leader
)

func (s State) String() string {
	switch s {
	case Follower:
		return "Follower"
	case Candidate:
		return "Candidate"
	case Leader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// None 表示“没有”：未投票、未知 Leader。
const None = -1

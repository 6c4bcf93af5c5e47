package domain

// Action 是单个 WorkItem 的文件系统动作。
type Action string

const (
	ActionNone   Action = "none"
	ActionRename Action = "rename"
	ActionCopy   Action = "copy"
	ActionMove   Action = "move"
)

// ItemStatus 是 WorkItem 的执行状态；只有执行控制器会修改它。
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemSuccess ItemStatus = "success"
	ItemFailed  ItemStatus = "failed"
	ItemSkipped ItemStatus = "skipped"
)

// WorkItem 是计划中的最小执行单元。
//
// 不变量：同一 Plan 内 Ordinal 唯一且稠密（0..N-1）。
// 全量替换时 Ordinal 顺序即比较器排序顺序，第 n 项与第 n 个解析名配对。
type WorkItem struct {
	Ordinal int        `json:"ordinal"`
	Source  string     `json:"source"`
	Action  Action     `json:"action"`
	Target  string     `json:"target"`
	Status  ItemStatus `json:"status"`

	// Name 是与该项配对的解析名（仅全量替换）。
	Name string `json:"name,omitempty"`
}

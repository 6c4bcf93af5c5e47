package domain

// PlanKind 是计划的构建策略。
type PlanKind string

const (
	KindFullReplace PlanKind = "full_replace"
	KindFanOut      PlanKind = "fan_out"
	KindPrefixSort  PlanKind = "prefix_sort"
)

// SortStrategy 是条目排序所用的比较策略。
type SortStrategy string

const (
	SortDefault  SortStrategy = "default"
	SortNatural  SortStrategy = "natural"
	SortAlphabet SortStrategy = "alphabet"
)

// Plan 是一次作业的不可变执行计划。
//
// 字段全部不导出：构建后只能读取副本，执行期的状态变化由控制器在自己的副本上维护。
type Plan struct {
	id    string
	kind  PlanKind
	sort  SortStrategy
	items []WorkItem
	names []string
}

// NewPlan 复制 items/names 并重新编号 Ordinal（保证 0..N-1 稠密）。
func NewPlan(id string, kind PlanKind, sort SortStrategy, items []WorkItem, names []string) Plan {
	cp := make([]WorkItem, len(items))
	copy(cp, items)
	for i := range cp {
		cp[i].Ordinal = i
		if cp[i].Status == "" {
			cp[i].Status = ItemPending
		}
	}
	return Plan{
		id:    id,
		kind:  kind,
		sort:  sort,
		items: cp,
		names: append([]string(nil), names...),
	}
}

func (p Plan) ID() string         { return p.id }
func (p Plan) Kind() PlanKind     { return p.kind }
func (p Plan) Sort() SortStrategy { return p.sort }
func (p Plan) Len() int           { return len(p.items) }
func (p Plan) IsZero() bool       { return p.id == "" && len(p.items) == 0 }
func (p Plan) Names() []string    { return append([]string(nil), p.names...) }

// Items 返回 WorkItem 的副本。
func (p Plan) Items() []WorkItem {
	out := make([]WorkItem, len(p.items))
	copy(out, p.items)
	return out
}

// Concurrent 表示各项相互独立、可以并发执行（仅 fan-out 复制）。
func (p Plan) Concurrent() bool { return p.kind == KindFanOut }

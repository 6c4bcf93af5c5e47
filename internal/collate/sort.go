package collate

import (
	"sort"

	"github.com/John-Robertt/sirala/internal/domain"
)

// SortKey 是列表排序依据（来自原列表界面的三种选项）。
type SortKey string

const (
	ByName SortKey = "name"
	ByDate SortKey = "date" // 最新的在前
	BySize SortKey = "size" // 最大的在前
)

// SortEntries 按比较器稳定排序，返回新切片（不修改入参）。
func SortEntries(entries []domain.Entry, c Comparator) []domain.Entry {
	return SortEntriesBy(entries, ByName, c)
}

// SortEntriesBy 按 key 稳定排序；date/size 相同时再按名字比较器排序。
func SortEntriesBy(entries []domain.Entry, key SortKey, c Comparator) []domain.Entry {
	out := make([]domain.Entry, len(entries))
	copy(out, entries)

	keys := make([]Key, len(out))
	for i := range out {
		keys[i] = c.Key(out[i].Name)
	}
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(i, j int) bool {
		a, b := idx[i], idx[j]
		switch key {
		case ByDate:
			ta, tb := out[a].ModTime, out[b].ModTime
			if !ta.Equal(tb) {
				return ta.After(tb)
			}
		case BySize:
			if out[a].Size != out[b].Size {
				return out[a].Size > out[b].Size
			}
		}
		return c.CompareKeys(keys[a], keys[b]) < 0
	})

	sorted := make([]domain.Entry, len(out))
	for i, k := range idx {
		sorted[i] = out[k]
	}
	return sorted
}

package app

import (
	"path/filepath"
	"sort"

	"github.com/John-Robertt/sirala/internal/collate"
	"github.com/John-Robertt/sirala/internal/domain"
)

// Group 是目标落在同一目录下的一组 WorkItem（只存 ordinal）。
type Group struct {
	Dir      string
	Ordinals []int
}

// GroupByTargetDir 把计划按目标目录分组，用于预览前缀归类 / fan-out 的去向。
//
// - groups 稳定排序：按 Dir 的比较器顺序
// - 组内 Ordinals 升序
// - action=none 的项不进任何组，按 ordinal 升序放进 unmatched
func GroupByTargetDir(items []domain.WorkItem, c collate.Comparator) (groups []Group, unmatched []int) {
	index := make(map[string]int, 32)
	groups = make([]Group, 0, 32)

	for _, it := range items {
		if it.Action == domain.ActionNone || it.Target == "" {
			unmatched = append(unmatched, it.Ordinal)
			continue
		}
		dir := filepath.Dir(it.Target)
		if idx, ok := index[dir]; ok {
			groups[idx].Ordinals = append(groups[idx].Ordinals, it.Ordinal)
			continue
		}
		index[dir] = len(groups)
		groups = append(groups, Group{Dir: dir, Ordinals: []int{it.Ordinal}})
	}

	sort.SliceStable(groups, func(i, j int) bool { return c.Compare(groups[i].Dir, groups[j].Dir) < 0 })
	for i := range groups {
		sort.Ints(groups[i].Ordinals)
	}
	sort.Ints(unmatched)
	return groups, unmatched
}

package planner

import (
	"fmt"
	"path/filepath"

	"github.com/John-Robertt/sirala/internal/domain"
)

// Row 是 dry-run 预览中的一行。
type Row struct {
	Ordinal int
	Source  string
	Target  string
	Action  domain.Action
	Status  domain.ItemStatus
}

// Preview 按 ordinal 顺序渲染计划（不触碰文件系统）。
func Preview(plan domain.Plan) []Row {
	items := plan.Items()
	rows := make([]Row, len(items))
	for i, it := range items {
		rows[i] = Row{
			Ordinal: it.Ordinal,
			Source:  it.Source,
			Target:  it.Target,
			Action:  it.Action,
			Status:  it.Status,
		}
	}
	return rows
}

// String 是一行预览的简短文本：同目录时只显示文件名。
func (r Row) String() string {
	if r.Status == domain.ItemSkipped {
		return fmt.Sprintf("%4d  %-6s  %s（跳过）", r.Ordinal+1, r.Action, r.Source)
	}
	src, dst := r.Source, r.Target
	if filepath.Dir(src) == filepath.Dir(dst) {
		src, dst = filepath.Base(src), filepath.Base(dst)
	}
	return fmt.Sprintf("%4d  %-6s  %s -> %s", r.Ordinal+1, r.Action, src, dst)
}

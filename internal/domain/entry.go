package domain

import "time"

// Entry 描述一次 list_entries 得到的目录项（只做 stat，不读内容）。
//
// 不变量：
// - Path 必须是 clean + absolute
// - Name 是 Path 的 base（保留原始大小写与扩展名）
type Entry struct {
	Name    string
	Path    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// Package planner 把已排序的条目与名字来源 / 目录池组合成不可变的执行计划。
//
// 所有构建函数都是纯函数：不读写文件系统；参数校验在创建任何 WorkItem 之前完成，
// 校验失败不会返回部分计划。
package planner

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/John-Robertt/sirala/internal/collate"
	"github.com/John-Robertt/sirala/internal/domain"
	"github.com/John-Robertt/sirala/internal/names"
)

const (
	MaxLimit     = 100000
	MaxEditLen   = 255
	MaxPrefixLen = 50
)

// 测试可替换。
var newID = uuid.NewString

// Edit 决定解析名替换原名的哪一部分。
type Edit string

const (
	EditWhole Edit = "whole"
	EditFirst Edit = "first" // 替换前 K 个字符
	EditLast  Edit = "last"  // 替换后 K 个字符
)

// FullReplaceParams 是全量替换的参数。
type FullReplaceParams struct {
	Cmp collate.Comparator

	// StartAt 是第一个要处理的条目名；空表示从第一个开始。
	StartAt string
	// Limit 为 0 表示全部，否则 1..MaxLimit。
	Limit   int
	Edit    Edit
	EditLen int
	// DestDir 为空表示原地重命名；否则移动到该目录。
	DestDir string
}

// FullReplace 把第 i 个条目与第 i 个解析名配对。
//
// 文件保留扩展名，目录没有扩展名。entries 必须已按 p.Cmp 排好序。
func FullReplace(entries []domain.Entry, src names.Source, p FullReplaceParams) (domain.Plan, error) {
	if err := p.validate(); err != nil {
		return domain.Plan{}, err
	}

	start := 0
	if p.StartAt != "" {
		start = indexOfName(entries, p.StartAt)
		if start < 0 {
			return domain.Plan{}, domain.Errorf(domain.ErrCodeConfig, "起始条目 %q 不存在", p.StartAt)
		}
	}
	todo := entries[start:]
	if p.Limit > 0 && len(todo) > p.Limit {
		todo = todo[:p.Limit]
	}

	var resolved []names.Name
	if len(todo) > 0 {
		var err error
		if resolved, err = src.Take(len(todo)); err != nil {
			return domain.Plan{}, err
		}
	}
	if len(resolved) < len(todo) {
		return domain.Plan{}, domain.Errorf(domain.ErrCodeCountMismatch,
			"需要 %d 个名字，名字表只解析到 %d 个", len(todo), len(resolved))
	}

	items := make([]domain.WorkItem, len(todo))
	seen := make(map[string]int, len(todo))
	for i, e := range todo {
		newName := compose(e, resolved[i].Value, p.Edit, p.EditLen)
		dir, action := filepath.Dir(e.Path), domain.ActionRename
		if p.DestDir != "" {
			dir, action = filepath.Clean(p.DestDir), domain.ActionMove
		}
		target := filepath.Join(dir, newName)

		key := p.Cmp.Fold(target)
		if j, dup := seen[key]; dup {
			err := domain.Errorf(domain.ErrCodeDuplicateName,
				"第 %d 项与第 %d 项的目标名相同：%q", j+1, i+1, newName)
			err.Row = resolved[i].Row
			return domain.Plan{}, err
		}
		seen[key] = i

		items[i] = domain.WorkItem{
			Source: e.Path,
			Action: action,
			Target: target,
			Name:   resolved[i].Value,
		}
	}

	return domain.NewPlan(newID(), domain.KindFullReplace, p.Cmp.Strategy(), items, names.Values(resolved)), nil
}

func (p FullReplaceParams) validate() error {
	if p.Limit < 0 || p.Limit > MaxLimit {
		return domain.Errorf(domain.ErrCodeConfig, "limit 必须在 1..%d 之间（0 表示全部），实际 %d", MaxLimit, p.Limit)
	}
	switch p.Edit {
	case "", EditWhole:
	case EditFirst, EditLast:
		if p.EditLen < 1 || p.EditLen > MaxEditLen {
			return domain.Errorf(domain.ErrCodeConfig, "edit_len 必须在 1..%d 之间，实际 %d", MaxEditLen, p.EditLen)
		}
	default:
		return domain.Errorf(domain.ErrCodeConfig, "未知 edit 模式 %q（whole|first|last）", p.Edit)
	}
	if p.DestDir != "" && !filepath.IsAbs(p.DestDir) {
		return domain.Errorf(domain.ErrCodeConfig, "dest_dir 必须是绝对路径：%q", p.DestDir)
	}
	return nil
}

func indexOfName(entries []domain.Entry, name string) int {
	for i := range entries {
		if entries[i].Name == name {
			return i
		}
	}
	// 精确匹配失败时按 NFC 再试一次（不同平台对同一名字的规范化形式可能不同）。
	want := norm.NFC.String(name)
	for i := range entries {
		if norm.NFC.String(entries[i].Name) == want {
			return i
		}
	}
	return -1
}

// compose 计算新名字：替换主干（whole / 前 K / 后 K 个字符），再接回扩展名。
//
// K 按 NFC 码点计数，但保留下来的部分原样取自原名的字节（分解形式不会被改写）；
// 切点落在 NFC 段边界上，一个带组合符的字符不会被切开。
func compose(e domain.Entry, name string, edit Edit, k int) string {
	stem, ext := splitExt(e)

	switch edit {
	case EditFirst, EditLast:
		segs := nfcSegments(stem)
		n := 0
		for _, sg := range segs {
			n += sg.runes
		}
		if k >= n {
			return name + ext
		}
		if edit == EditFirst {
			return name + stem[cutAfter(segs, k):] + ext
		}
		return stem[:cutWithin(segs, n-k)] + name + ext
	default:
		return name + ext
	}
}

// segment 是原名中的一个 NFC 段：end 为它在原字节串中的结束位置，runes 为其 NFC 码点数。
type segment struct{ end, runes int }

func nfcSegments(s string) []segment {
	var it norm.Iter
	it.InitString(norm.NFC, s)
	var out []segment
	for !it.Done() {
		b := it.Next()
		out = append(out, segment{end: it.Pos(), runes: utf8.RuneCount(b)})
	}
	return out
}

// cutAfter 返回覆盖前 k 个码点所需的最短前缀的字节长度。
func cutAfter(segs []segment, k int) int {
	off, count := 0, 0
	for _, sg := range segs {
		if count >= k {
			break
		}
		count += sg.runes
		off = sg.end
	}
	return off
}

// cutWithin 返回不超过 keep 个码点的最长前缀的字节长度。
func cutWithin(segs []segment, keep int) int {
	off, count := 0, 0
	for _, sg := range segs {
		if count+sg.runes > keep {
			break
		}
		count += sg.runes
		off = sg.end
	}
	return off
}

// splitExt：目录没有扩展名；".bashrc" 这类只有前导点的名字整体算主干。
func splitExt(e domain.Entry) (stem, ext string) {
	if e.IsDir {
		return e.Name, ""
	}
	ext = filepath.Ext(e.Name)
	stem = strings.TrimSuffix(e.Name, ext)
	if stem == "" {
		return e.Name, ""
	}
	return stem, ext
}

// FanOutParams 是 fan-out 复制的参数。
type FanOutParams struct {
	Cmp collate.Comparator
}

// FanOut 为每个目录生成一个 copy 项：dir/<源文件名>。
//
// 目标恰好是源文件本身时（源文件就在某个被发现的目录里），该项预置为 skipped。
func FanOut(source domain.Entry, dirs []domain.Entry, p FanOutParams) (domain.Plan, error) {
	if source.Path == "" {
		return domain.Plan{}, domain.Errorf(domain.ErrCodeConfig, "源文件不能为空")
	}
	if source.IsDir {
		return domain.Plan{}, domain.Errorf(domain.ErrCodeConfig, "fan-out 的源必须是普通文件：%s", source.Path)
	}

	items := make([]domain.WorkItem, 0, len(dirs))
	for _, d := range dirs {
		target := filepath.Join(d.Path, source.Name)
		it := domain.WorkItem{Source: source.Path, Action: domain.ActionCopy, Target: target}
		if filepath.Clean(target) == filepath.Clean(source.Path) {
			it.Action, it.Status = domain.ActionNone, domain.ItemSkipped
		}
		items = append(items, it)
	}
	return domain.NewPlan(newID(), domain.KindFanOut, p.Cmp.Strategy(), items, nil), nil
}

// PrefixSortParams 是前缀匹配归类的参数。
type PrefixSortParams struct {
	Cmp collate.Comparator
	// K 是比较的前缀长度（NFC + 折叠后的码点数），1..MaxPrefixLen。
	K int
	// Copy=true 时复制到目录，否则移动。
	Copy bool
}

// PrefixSort 把每个文件放进第一个（按比较器顺序）前 K 个字符与之相同的目录。
//
// 名字不足 K 个字符的文件或目录不参与匹配；没有匹配的文件预置为 skipped、action=none。
func PrefixSort(files, dirs []domain.Entry, p PrefixSortParams) (domain.Plan, error) {
	if p.K < 1 || p.K > MaxPrefixLen {
		return domain.Plan{}, domain.Errorf(domain.ErrCodeConfig, "前缀长度必须在 1..%d 之间，实际 %d", MaxPrefixLen, p.K)
	}

	ordered := collate.SortEntries(dirs, p.Cmp)
	type candidate struct {
		prefix string
		dir    domain.Entry
	}
	cands := make([]candidate, 0, len(ordered))
	for _, d := range ordered {
		if pre, ok := Prefix(p.Cmp, d.Name, p.K); ok {
			cands = append(cands, candidate{prefix: pre, dir: d})
		}
	}

	action := domain.ActionMove
	if p.Copy {
		action = domain.ActionCopy
	}

	items := make([]domain.WorkItem, 0, len(files))
	for _, f := range files {
		it := domain.WorkItem{Source: f.Path, Action: domain.ActionNone, Status: domain.ItemSkipped}
		if pre, ok := Prefix(p.Cmp, f.Name, p.K); ok {
			for _, c := range cands {
				if c.prefix == pre {
					it.Action, it.Status = action, domain.ItemPending
					it.Target = filepath.Join(c.dir.Path, f.Name)
					break
				}
			}
		}
		items = append(items, it)
	}
	return domain.NewPlan(newID(), domain.KindPrefixSort, p.Cmp.Strategy(), items, nil), nil
}

// Prefix 返回 name 折叠后的前 k 个码点；不足 k 个时 ok=false。
//
// 折叠与排序使用同一规则（NFC + 大小写折叠，字母表策略按其语言），
// 因此分解形式与组合形式的字母、以及 az 的 I/ı、İ/i 都按同一个字母比较。
func Prefix(c collate.Comparator, name string, k int) (string, bool) {
	s := c.Fold(name)
	if utf8.RuneCountInString(s) < k {
		return "", false
	}
	i := 0
	for n := 0; n < k; n++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i], true
}

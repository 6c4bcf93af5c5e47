// Package scan 列出目录项，只做 stat，不读文件内容。
package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/sirala/internal/domain"
)

// StateDir 是工具自己的状态目录（报告等），扫描时永久排除。
const StateDir = ".sirala"

// Kind 选择要列出的目录项类型。
type Kind string

const (
	KindFiles Kind = "files"
	KindDirs  Kind = "dirs"
)

// Filter 是 ListEntries 的过滤条件。
type Filter struct {
	Kind Kind
	// Exts 只对文件生效；为空表示不过滤。大小写不敏感，带不带点都可以。
	Exts []string
	// DirSize=true 时目录的 Size 为其下所有文件大小之和（按 size 排序时需要）。
	DirSize bool
}

// ListEntries 列出 dir 的直接子项（不递归）。
//
// 输出按 Name 字节序排列，只是为了跨平台稳定；业务排序由调用方用比较器完成。
func ListEntries(dir string, f Filter) ([]domain.Entry, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, notFoundOr(dir, err)
	}
	exts := normExts(f.Exts)

	out := make([]domain.Entry, 0, len(des))
	for _, d := range des {
		if d.Name() == StateDir {
			continue
		}
		// 符号链接按目标类型判断。
		info, err := os.Stat(filepath.Join(dir, d.Name()))
		if err != nil {
			continue
		}
		if !want(f.Kind, info.IsDir()) {
			continue
		}
		if !info.IsDir() && len(exts) > 0 {
			if _, ok := exts[strings.ToLower(filepath.Ext(d.Name()))]; !ok {
				continue
			}
		}

		e := toEntry(filepath.Join(dir, d.Name()), info)
		if e.IsDir && f.DirSize {
			if e.Size, err = TreeSize(e.Path); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ChildDirs 列出 dir 的直接子目录（prefix 匹配排序的候选目录）。
func ChildDirs(dir string) ([]domain.Entry, error) {
	return ListEntries(dir, Filter{Kind: KindDirs})
}

// Subdirs 递归列出 root 下的所有子目录（不含 root 本身），并应用排除规则。
//
// 规则：
// - 永久排除：<root>/.sirala/
// - excludeDirs：相对 root 的路径（绝对路径按绝对路径处理）
// - 不跟随符号链接
func Subdirs(root string, excludeDirs []string) ([]domain.Entry, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, notFoundOr(root, err)
	}
	if !info.IsDir() {
		return nil, domain.Errorf(domain.ErrCodeConfig, "不是目录：%s", root)
	}
	excluded := buildExcluded(root, excludeDirs)

	dirs := make([]domain.Entry, 0, 64)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if isExcluded(path, excluded) {
			return filepath.SkipDir
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		dirs = append(dirs, toEntry(path, info))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Path < dirs[j].Path })
	return dirs, nil
}

// Stat 返回单个路径的 Entry（跟随符号链接）。
func Stat(path string) (domain.Entry, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return domain.Entry{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Entry{}, &domain.Error{Code: domain.ErrCodeSourceNotFound, Msg: "路径不存在", Path: path, Err: err}
		}
		return domain.Entry{}, &domain.Error{Code: domain.ErrCodeIOFailure, Msg: "读取路径失败", Path: path, Err: err}
	}
	return toEntry(path, info), nil
}

// TreeSize 返回 dir 下所有普通文件大小之和。
func TreeSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}

func toEntry(path string, info fs.FileInfo) domain.Entry {
	e := domain.Entry{
		Name:    filepath.Base(path),
		Path:    filepath.Clean(path),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
	}
	if !e.IsDir {
		e.Size = info.Size()
	}
	return e
}

func want(k Kind, isDir bool) bool {
	switch k {
	case KindDirs:
		return isDir
	default:
		return !isDir
	}
}

func normExts(in []string) map[string]struct{} {
	if len(in) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(in))
	for _, x := range in {
		x = strings.ToLower(strings.TrimSpace(x))
		if x == "" {
			continue
		}
		if !strings.HasPrefix(x, ".") {
			x = "." + x
		}
		m[x] = struct{}{}
	}
	return m
}

func notFoundOr(path string, err error) error {
	if os.IsNotExist(err) {
		return &domain.Error{Code: domain.ErrCodeSourceNotFound, Msg: "目录不存在", Path: path, Err: err}
	}
	return &domain.Error{Code: domain.ErrCodeIOFailure, Msg: "读取目录失败", Path: path, Err: err}
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, 1+len(excludeDirs))
	excluded = append(excluded, filepath.Join(root, StateDir))

	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(filepath.Separator))
}

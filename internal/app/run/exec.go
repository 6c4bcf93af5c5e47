package run

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/John-Robertt/sirala/internal/domain"
	"github.com/John-Robertt/sirala/internal/infra/fsx"
)

// outcome 是单项执行结果（不含序号与时间戳，由控制器补齐）。
type outcome struct {
	status domain.ItemStatus
	code   string
	msg    string
}

func failed(code string, err error) outcome {
	return outcome{status: domain.ItemFailed, code: code, msg: err.Error()}
}

// execItem 执行一个 WorkItem。单项失败只体现在 outcome 上，永远不向上返回错误。
//
// 规则：
// - 预置 skipped / action=none：不碰文件系统
// - 源不存在：source_not_found
// - copy：目标已存在时原子覆盖
// - rename/move：目标已存在且不是同一文件时 destination_collision（只改大小写的重命名允许）
// - 其余 OS 错误：io_failure
func execItem(fsys fsx.FS, it domain.WorkItem) outcome {
	if it.Status == domain.ItemSkipped || it.Action == domain.ActionNone {
		return outcome{status: domain.ItemSkipped, msg: "未匹配到目标，跳过"}
	}

	if _, err := fsys.Lstat(it.Source); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return failed(domain.ErrCodeSourceNotFound, fmt.Errorf("源不存在：%s", it.Source))
		}
		return failed(domain.ErrCodeIOFailure, err)
	}

	if it.Action != domain.ActionRename {
		if err := fsys.MkdirAll(filepath.Dir(it.Target)); err != nil {
			return failed(domain.ErrCodeIOFailure, err)
		}
	}

	switch it.Action {
	case domain.ActionCopy:
		if err := fsys.CopyFile(it.Source, it.Target); err != nil {
			if fsx.IsPathTypeConflict(err) {
				return failed(domain.ErrCodeDestinationCollision, err)
			}
			return failed(domain.ErrCodeIOFailure, err)
		}
		return outcome{status: domain.ItemSuccess, msg: "已复制到 " + it.Target}

	case domain.ActionRename, domain.ActionMove:
		if filepath.Clean(it.Source) == filepath.Clean(it.Target) {
			return outcome{status: domain.ItemSuccess, msg: "名字未变化"}
		}
		if _, err := fsys.Lstat(it.Target); err == nil {
			if !fsys.SameFile(it.Source, it.Target) {
				return failed(domain.ErrCodeDestinationCollision, fmt.Errorf("目标已存在：%s", it.Target))
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return failed(domain.ErrCodeIOFailure, err)
		}

		op := fsys.Rename
		if it.Action == domain.ActionMove {
			op = fsys.Move
		}
		if err := op(it.Source, it.Target); err != nil {
			return failed(domain.ErrCodeIOFailure, err)
		}
		return outcome{status: domain.ItemSuccess, msg: filepath.Base(it.Source) + " -> " + filepath.Base(it.Target)}

	default:
		return failed(domain.ErrCodeIOFailure, fmt.Errorf("未知动作 %q", it.Action))
	}
}

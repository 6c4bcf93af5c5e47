//go:build unix

package fsx

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func exdevRename(oldpath, newpath string) error {
	return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
}

func TestRename_CrossDeviceEXDEV(t *testing.T) {
	old := renameFunc
	renameFunc = exdevRename
	defer func() { renameFunc = old }()

	err := Rename("/a", "/b")
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if !IsCrossDevice(err) {
		t.Fatalf("期望 CrossDeviceError，实际：%T %v", err, err)
	}
}

func TestMove_CrossDeviceFallsBackToCopyTree(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "folder")
	writeFile(t, filepath.Join(src, "a.txt"), "a")
	writeFile(t, filepath.Join(src, "sub", "b.txt"), "b")
	if err := os.Symlink("a.txt", filepath.Join(src, "link")); err != nil {
		t.Fatalf("创建符号链接失败：%v", err)
	}
	dst := filepath.Join(dir, "other", "folder")

	// 只让“源 -> 目标”的 rename 报 EXDEV；CopyFile 内部的临时文件 rename 走真实实现。
	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		if oldpath == src {
			return exdevRename(oldpath, newpath)
		}
		return os.Rename(oldpath, newpath)
	}
	defer func() { renameFunc = old }()

	if err := Move(src, dst); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("跨盘移动后源目录应被删除")
	}
	if got := readFile(t, filepath.Join(dst, "sub", "b.txt")); got != "b" {
		t.Fatalf("子目录内容未复制：%q", got)
	}
	if link, err := os.Readlink(filepath.Join(dst, "link")); err != nil || link != "a.txt" {
		t.Fatalf("符号链接未保留：%q %v", link, err)
	}
}

func TestMove_CrossDeviceCopyFailureKeepsSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	writeFile(t, src, "a")
	dst := filepath.Join(dir, "out", "a.txt")

	renameCalls := 0
	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		renameCalls++
		if renameCalls == 1 {
			return exdevRename(oldpath, newpath)
		}
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	if err := Move(src, dst); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if got := readFile(t, src); got != "a" {
		t.Fatalf("复制失败时源文件应保留：%q", got)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("复制失败时不应留下目标")
	}
}

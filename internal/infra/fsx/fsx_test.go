package fsx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomicNoOverwrite_SuccessAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomicNoOverwrite(dir, "a.txt", []byte("hello")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := readFile(t, filepath.Join(dir, "a.txt")); got != "hello" {
		t.Fatalf("内容不一致：%q", got)
	}
	assertNoTemp(t, dir, "a.txt")
}

func TestWriteFileAtomicNoOverwrite_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	if err := WriteFileAtomicNoOverwrite(dir, "a.txt", []byte("hello")); err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}
	assertNoTemp(t, dir, "a.txt")
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("不应写出最终文件")
	}
}

func TestWriteFileAtomicNoOverwrite(t *testing.T) {
	dir := t.TempDir()

	if err := os.Mkdir(filepath.Join(dir, "d.json"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := WriteFileAtomicNoOverwrite(dir, "d.json", []byte("{}")); !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%T %v", err, err)
	}

	if err := WriteFileAtomicNoOverwrite(dir, "r.json", []byte("1")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := WriteFileAtomicNoOverwrite(dir, "r.json", []byte("2")); !errors.Is(err, os.ErrExist) {
		t.Fatalf("期望 os.ErrExist，实际：%v", err)
	}
	if got := readFile(t, filepath.Join(dir, "r.json")); got != "1" {
		t.Fatalf("已存在的文件不应被覆盖：%q", got)
	}
}

func TestCopyFile_OverwritesAndKeepsMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.sh")
	dst := filepath.Join(dir, "out", "dst.sh")
	writeFile(t, src, "new")
	if err := os.Chmod(src, 0o755); err != nil {
		t.Fatalf("chmod 失败：%v", err)
	}
	writeFile(t, dst, "old-content")

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := readFile(t, dst); got != "new" {
		t.Fatalf("目标未被覆盖：%q", got)
	}
	fi, _ := os.Stat(dst)
	if fi.Mode().Perm() != 0o755 {
		t.Fatalf("权限位未保留：%v", fi.Mode())
	}
	assertNoTemp(t, filepath.Dir(dst), "dst.sh")
}

func TestCopyFile_DestinationIsDir(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	writeFile(t, src, "x")
	if err := os.Mkdir(filepath.Join(dir, "b"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := CopyFile(src, filepath.Join(dir, "b")); !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%v", err)
	}
}

func TestMove_SameDevice(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "b.txt")
	writeFile(t, src, "x")

	if err := (OS{}).Move(src, dst); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("源文件应已移走")
	}
	if got := readFile(t, dst); got != "x" {
		t.Fatalf("目标内容不一致：%q", got)
	}
}

func TestSameFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	writeFile(t, a, "x")
	if !SameFile(a, filepath.Join(dir, ".", "a")) {
		t.Fatalf("同一路径应视为同一文件")
	}
	b := filepath.Join(dir, "b")
	writeFile(t, b, "x")
	if SameFile(a, b) || SameFile(a, filepath.Join(dir, "missing")) {
		t.Fatalf("不同文件不应视为同一文件")
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	return string(b)
}

func assertNoTemp(t *testing.T, dir, name string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "."+name+".tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

package run

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"time"
)

// fakeFS 是内存文件系统：只记录路径是否存在与内容，不区分目录层级。
type fakeFS struct {
	mu    sync.Mutex
	files map[string]string
	ops   []string
	fail  map[string]error // 按源路径注入失败
	// hook 在每次变更操作开始时调用（不持锁），测试可以在这里阻塞。
	hook func(op, src string)
}

func newFakeFS(paths ...string) *fakeFS {
	f := &fakeFS{files: map[string]string{}, fail: map[string]error{}}
	for _, p := range paths {
		f.files[p] = filepath.Base(p)
	}
	return f
}

func (f *fakeFS) Lstat(path string) (fs.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[path]; !ok {
		return nil, &fs.PathError{Op: "lstat", Path: path, Err: fs.ErrNotExist}
	}
	return fakeInfo{name: filepath.Base(path)}, nil
}

func (f *fakeFS) SameFile(a, b string) bool { return a == b }

func (f *fakeFS) Rename(src, dst string) error { return f.mutate("rename", src, dst, true) }
func (f *fakeFS) Move(src, dst string) error   { return f.mutate("move", src, dst, true) }
func (f *fakeFS) CopyFile(src, dst string) error {
	return f.mutate("copy", src, dst, false)
}
func (f *fakeFS) MkdirAll(string) error { return nil }

func (f *fakeFS) mutate(op, src, dst string, remove bool) error {
	if f.hook != nil {
		f.hook(op, src)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op+" "+src)
	if err := f.fail[src]; err != nil {
		return err
	}
	body, ok := f.files[src]
	if !ok {
		return &fs.PathError{Op: op, Path: src, Err: fs.ErrNotExist}
	}
	f.files[dst] = body
	if remove {
		delete(f.files, src)
	}
	return nil
}

func (f *fakeFS) opCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ops)
}

func (f *fakeFS) exists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok
}

var errDiskFull = errors.New("no space left on device")

type fakeInfo struct{ name string }

func (i fakeInfo) Name() string       { return i.name }
func (i fakeInfo) Size() int64        { return 1 }
func (i fakeInfo) Mode() fs.FileMode  { return 0o644 }
func (i fakeInfo) ModTime() time.Time { return time.Time{} }
func (i fakeInfo) IsDir() bool        { return false }
func (i fakeInfo) Sys() any           { return nil }

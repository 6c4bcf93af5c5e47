// Package reportstore 把作业报告落盘到 <root>/.sirala/ 下。
package reportstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/John-Robertt/sirala/internal/domain"
	"github.com/John-Robertt/sirala/internal/infra/fsx"
)

// Dir 是状态目录名；扫描器同样会跳过它。
const Dir = ".sirala"

// Store 提供 <root>/.sirala/report-<job_id>.json 的读写。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - apply：允许写（ReadOnly=false）；同一作业的报告只写一次，不覆盖
type Store struct {
	Root     string
	ReadOnly bool
}

var ErrReadOnly = errors.New("reportstore: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// Path 返回某个作业报告的绝对路径。
func (s Store) Path(jobID string) (string, error) {
	id, err := cleanJobID(jobID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, Dir, fileName(id)), nil
}

// Write 写入报告并返回路径。报告已存在时返回 os.ErrExist。
func (s Store) Write(rep domain.Report) (string, error) {
	if s.ReadOnly {
		return "", ErrReadOnly
	}
	id, err := cleanJobID(rep.JobID)
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", err
	}
	b = append(b, '\n')

	dir := filepath.Join(s.Root, Dir)
	if err := fsx.WriteFileAtomicNoOverwrite(dir, fileName(id), b); err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName(id)), nil
}

// Read 读取报告；不存在时 ok=false 且不报错。
func (s Store) Read(jobID string) (rep domain.Report, ok bool, err error) {
	path, err := s.Path(jobID)
	if err != nil {
		return domain.Report{}, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Report{}, false, nil
		}
		return domain.Report{}, false, err
	}
	if err := json.Unmarshal(b, &rep); err != nil {
		return domain.Report{}, true, fmt.Errorf("解析报告 %s 失败：%w", path, err)
	}
	return rep, true, nil
}

// List 返回已落盘的作业 id，按报告的 started_at 从早到晚排列。
func (s Store) List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.Root, Dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type item struct {
		id  string
		rep domain.Report
	}
	var items []item
	for _, e := range entries {
		id, ok := parseFileName(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		rep, _, err := s.Read(id)
		if err != nil {
			return nil, err
		}
		items = append(items, item{id: id, rep: rep})
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].rep.StartedAt, items[j].rep.StartedAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return items[i].id < items[j].id
	})

	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.id
	}
	return out, nil
}

func fileName(id string) string { return "report-" + id + ".json" }

func parseFileName(name string) (string, bool) {
	if !strings.HasPrefix(name, "report-") || !strings.HasSuffix(name, ".json") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, "report-"), ".json")
	if _, err := cleanJobID(id); err != nil {
		return "", false
	}
	return id, true
}

var jobIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func cleanJobID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("job_id 不能为空")
	}
	// 最小约束：避免路径穿越。
	if !jobIDRE.MatchString(id) {
		return "", fmt.Errorf("非法 job_id：%q", id)
	}
	return id, nil
}

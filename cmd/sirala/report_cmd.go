package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/John-Robertt/sirala/internal/domain"
	"github.com/John-Robertt/sirala/internal/infra/reportstore"
)

const errCodeReportNotFound = "report_not_found"

// reportCmd 查看已落盘的报告：不带 job_id 时列出全部，否则输出该报告。
// 只读打开 store，不会写任何东西。
func reportCmd(args []string, s streams) int {
	var pos []string
	for _, a := range args {
		if isHelp(a) {
			printReportUsage(s.stdout)
			return 0
		}
		pos = append(pos, a)
	}
	if len(pos) > 2 {
		fmt.Fprintf(s.stderr, "参数错误：多余的参数 %q\n\n", pos[2])
		printReportUsage(s.stderr)
		return 2
	}

	cwd, err := s.getwd()
	if err != nil {
		fmt.Fprintf(s.stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	root := cwd
	if len(pos) >= 1 {
		root = pos[0]
		if !filepath.IsAbs(root) {
			root = filepath.Join(cwd, root)
		}
	}
	store := reportstore.New(root, true)

	if len(pos) == 2 {
		rep, ok, err := store.Read(pos[1])
		if err != nil {
			emitError(s, domain.ErrCodeIOFailure, err)
			return 1
		}
		if !ok {
			emitError(s, errCodeReportNotFound, fmt.Errorf("未找到报告：%s", pos[1]))
			return 1
		}
		emitReport(s, rep)
		return 0
	}

	ids, err := store.List()
	if err != nil {
		emitError(s, domain.ErrCodeIOFailure, err)
		return 1
	}
	if !s.stdoutTTY {
		if ids == nil {
			ids = []string{}
		}
		_ = json.NewEncoder(s.stdout).Encode(ids)
		return 0
	}
	if len(ids) == 0 {
		fmt.Fprintf(s.stdout, "%s 下没有报告\n", filepath.Join(root, reportstore.Dir))
		return 0
	}
	for _, id := range ids {
		rep, _, err := store.Read(id)
		if err != nil {
			fmt.Fprintf(s.stderr, "%s: %v\n", id, err)
			continue
		}
		sum := rep.Summary
		fmt.Fprintf(s.stdout, "%s  %s  %-12s %-9s ok=%d fail=%d skip=%d pending=%d\n",
			id, rep.StartedAt.Local().Format(time.DateTime), rep.Kind, rep.State,
			sum.Succeeded, sum.Failed, sum.Skipped, sum.Pending,
		)
	}
	return 0
}

func printReportUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  sirala report [dir] [job_id]

说明：
  - dir 默认为当前目录；报告位于 <dir>/.sirala/report-<job_id>.json
  - 不带 job_id：列出全部报告（按开始时间排序；stdout 非 TTY 时输出 JSON 数组）
  - 带 job_id：输出该报告（stdout 非 TTY 时输出 Report JSON）
`)
}

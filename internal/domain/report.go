package domain

import (
	"time"
)

// Summary 是作业的最终计数。Pending 只在作业被 stop 时非零。
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Pending   int `json:"pending"`
}

// Add 按状态累加一条结果。
func (s *Summary) Add(st ItemStatus) {
	switch st {
	case ItemSuccess:
		s.Succeeded++
	case ItemFailed:
		s.Failed++
	case ItemSkipped:
		s.Skipped++
	}
}

// Report 是对外稳定输出（report.json / stdout JSON）的结构。
type Report struct {
	JobID  string   `json:"job_id"`
	Kind   PlanKind `json:"kind"`
	State  JobState `json:"state"`
	DryRun bool     `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary Summary        `json:"summary"`
	Records []ResultRecord `json:"records"`

	// Items 仅在 dry-run 时输出（计划预览）。
	Items []WorkItem `json:"items,omitempty"`
}

// Finalize 做两件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) summary 由 records 计算得出；Total 不足的部分记为 Pending
//
// records 是按发出顺序追加的日志，这里绝不重排。
func (r *Report) Finalize(total int) {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Records == nil {
		r.Records = []ResultRecord{}
	}

	s := Summary{Total: total}
	for _, rec := range r.Records {
		s.Add(rec.Status)
	}
	s.Pending = total - s.Succeeded - s.Failed - s.Skipped
	if s.Pending < 0 {
		s.Pending = 0
	}
	r.Summary = s
}

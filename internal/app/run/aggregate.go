package run

import (
	"time"

	"github.com/John-Robertt/sirala/internal/domain"
)

// Aggregator 把逐项结果累加为计数与有序日志。
//
// 不是并发安全的：控制器只在持锁时调用它。
type Aggregator struct {
	total   int
	summary domain.Summary
	records []domain.ResultRecord
}

func NewAggregator(total int) *Aggregator {
	return &Aggregator{
		total:   total,
		summary: domain.Summary{Total: total},
		records: make([]domain.ResultRecord, 0, total),
	}
}

// Add 追加一条结果（日志只追加，不重排）。
func (a *Aggregator) Add(rec domain.ResultRecord) {
	a.records = append(a.records, rec)
	a.summary.Add(rec.Status)
}

// Done 是已记录的结果数。
func (a *Aggregator) Done() int { return len(a.records) }

// Summary 返回当前计数；尚未产生结果的项计为 Pending。
func (a *Aggregator) Summary() domain.Summary {
	s := a.summary
	s.Pending = a.total - len(a.records)
	if s.Pending < 0 {
		s.Pending = 0
	}
	return s
}

// Records 返回日志副本。
func (a *Aggregator) Records() []domain.ResultRecord {
	return append([]domain.ResultRecord(nil), a.records...)
}

// Report 组装对外报告。
func (a *Aggregator) Report(plan domain.Plan, state domain.JobState, started, finished time.Time) domain.Report {
	r := domain.Report{
		JobID:      plan.ID(),
		Kind:       plan.Kind(),
		State:      state,
		StartedAt:  started,
		FinishedAt: finished,
		Records:    a.Records(),
	}
	r.Finalize(a.total)
	return r
}

// DryRun 生成不执行任何动作的预览报告：每一项都是 pending（或计划阶段预置的 skipped）。
func DryRun(plan domain.Plan, now time.Time) domain.Report {
	r := domain.Report{
		JobID:      plan.ID(),
		Kind:       plan.Kind(),
		State:      domain.JobIdle,
		DryRun:     true,
		StartedAt:  now,
		FinishedAt: now,
		Items:      plan.Items(),
	}
	r.Finalize(plan.Len())
	return r
}

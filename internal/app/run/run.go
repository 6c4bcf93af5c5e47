// Package run 执行计划：单作业 Runner + 可暂停 / 恢复 / 停止的执行控制器。
//
// 并发模型：
// - 顺序计划（全量替换、前缀归类）按 ordinal 逐项执行
// - fan-out 复制用固定大小的 worker pool；worker 只执行，不碰日志
// - 结果经由一个通道汇入唯一的累加 goroutine，由它追加日志并发出事件
// - 暂停 / 停止只在两项之间生效：正在执行的项总会完成
package run

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/sirala/internal/domain"
	"github.com/John-Robertt/sirala/internal/infra/fsx"
	"github.com/John-Robertt/sirala/internal/infra/tracing"
)

const (
	DefaultWorkers = 4
	MaxWorkers     = 32
)

// Options 是一次作业的执行参数。零值可用。
type Options struct {
	// Workers 只对 fan-out 生效；0 表示 DefaultWorkers。
	Workers int
	// EventBuffer 是事件通道容量；发送会阻塞，事件不会丢弃。
	EventBuffer int
	FS          fsx.FS
	Logger      *slog.Logger
	// Now 用于结果时间戳；测试可替换。
	Now func() time.Time
}

func (o Options) withDefaults() (Options, error) {
	if o.Workers < 0 || o.Workers > MaxWorkers {
		return o, domain.Errorf(domain.ErrCodeConfig, "workers 必须在 1..%d 之间，实际 %d", MaxWorkers, o.Workers)
	}
	if o.Workers == 0 {
		o.Workers = DefaultWorkers
	}
	if o.EventBuffer < 0 {
		o.EventBuffer = 0
	}
	if o.FS == nil {
		o.FS = fsx.OS{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o, nil
}

// Runner 同一时间最多持有一个活动作业。它是显式实例，不是包级全局状态。
type Runner struct {
	mu     sync.Mutex
	active *Controller
}

func NewRunner() *Runner { return &Runner{} }

// Start 启动作业并立即返回控制器。已有作业在 running / paused 时返回 job_already_running。
func (r *Runner) Start(ctx context.Context, plan domain.Plan, opts Options) (*Controller, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil && r.active.State().Active() {
		return nil, domain.Errorf(domain.ErrCodeJobAlreadyRunning, "作业 %s 仍在运行", r.active.plan.ID())
	}

	c := newController(plan, opts)
	r.active = c
	go c.run(ctx)
	return c, nil
}

// Active 返回最近一次启动的作业（可能已结束）；从未启动时为 nil。
func (r *Runner) Active() *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Controller 是一个运行中作业的句柄。
type Controller struct {
	plan  domain.Plan
	items []domain.WorkItem
	opts  Options
	log   *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	state    domain.JobState
	agg      *Aggregator
	started  time.Time
	finished time.Time

	emitMu sync.Mutex
	seq    uint64
	events chan domain.Event

	done   chan struct{}
	report domain.Report
}

func newController(plan domain.Plan, opts Options) *Controller {
	c := &Controller{
		plan:    plan,
		items:   plan.Items(),
		opts:    opts,
		log:     opts.Logger.With("job_id", plan.ID(), "kind", string(plan.Kind())),
		state:   domain.JobRunning,
		agg:     NewAggregator(plan.Len()),
		started: opts.Now(),
		events:  make(chan domain.Event, opts.EventBuffer),
		done:    make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *Controller) JobID() string { return c.plan.ID() }

// Events 返回事件流。通道在终态事件之后关闭；调用方必须持续读取（或交给 Drain）。
func (c *Controller) Events() <-chan domain.Event { return c.events }

func (c *Controller) State() domain.JobState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pause 只在 running 时有效；正在执行的项会完成，下一项在 Resume 之前不会开始。
func (c *Controller) Pause() error {
	return c.transition(domain.JobPaused, domain.JobRunning)
}

// Resume 只在 paused 时有效。
func (c *Controller) Resume() error {
	return c.transition(domain.JobRunning, domain.JobPaused)
}

// Stop 在 running / paused 时有效；停止后不能恢复，未开始的项保持 pending。
func (c *Controller) Stop() error {
	return c.transition(domain.JobStopped, domain.JobRunning, domain.JobPaused)
}

func (c *Controller) transition(to domain.JobState, from ...domain.JobState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range from {
		if c.state == f {
			c.state = to
			c.cond.Broadcast()
			c.log.Info("作业状态变更", "from", string(f), "to", string(to))
			return nil
		}
	}
	return domain.Errorf(domain.ErrCodeInvalidState, "当前状态 %s 不能切换到 %s", c.state, to)
}

// Wait 阻塞到作业进入终态，并返回最终报告。
func (c *Controller) Wait() domain.Report {
	<-c.done
	return c.report
}

// Done 在作业进入终态且事件通道关闭后关闭。
func (c *Controller) Done() <-chan struct{} { return c.done }

// Report 返回任意时刻的报告快照（终态后与 Wait 的结果相同）。
func (c *Controller) Report() domain.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	finished := c.finished
	if finished.IsZero() {
		finished = c.opts.Now()
	}
	return c.agg.Report(c.plan, c.state, c.started, finished)
}

// Items 返回带当前状态的 WorkItem 副本。
func (c *Controller) Items() []domain.WorkItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.WorkItem(nil), c.items...)
}

func (c *Controller) run(ctx context.Context) {
	// ctx 取消等同于 stop（也会唤醒暂停中的调度）。
	stopOnCancel := context.AfterFunc(ctx, func() { _ = c.Stop() })
	defer stopOnCancel()

	ctx, span := tracing.StartSpan(ctx, "job.run",
		attribute.String("job_id", c.plan.ID()),
		attribute.String("kind", string(c.plan.Kind())),
		attribute.Int("items", len(c.items)),
	)

	c.log.Info("作业开始", "items", len(c.items))
	c.emitState(domain.JobRunning)

	if c.plan.Concurrent() {
		c.runPool(ctx)
	} else {
		c.runSequential(ctx)
	}
	c.finish(span)
}

// exec 执行一项并为它记录一个 span；ctx 只承载 trace，取消不会打断这一项。
func (c *Controller) exec(ctx context.Context, it domain.WorkItem) outcome {
	_, span := tracing.StartSpan(ctx, "item.exec",
		attribute.Int("ordinal", it.Ordinal),
		attribute.String("action", string(it.Action)),
	)
	out := execItem(c.opts.FS, it)
	span.SetAttributes(attribute.String("status", string(out.status)))
	if out.status == domain.ItemFailed {
		tracing.End(span, fmt.Errorf("%s: %s", out.code, out.msg))
	} else {
		tracing.End(span, nil)
	}
	return out
}

func (c *Controller) runSequential(ctx context.Context) {
	for _, it := range c.items {
		if !c.checkpoint() {
			return
		}
		c.record(it, c.exec(ctx, it))
	}
}

func (c *Controller) runPool(ctx context.Context) {
	type result struct {
		item domain.WorkItem
		out  outcome
	}

	workers := c.opts.Workers
	if workers > len(c.items) {
		workers = len(c.items)
	}

	// 空闲 worker 先在 ready 上报到，调度方收到报到后才过检查点并交出一项：
	// 检查点之后到交出之间不会再阻塞，暂停 / 停止不会漏过一个已越过检查点的项。
	ready := make(chan struct{})
	quit := make(chan struct{})
	jobs := make(chan domain.WorkItem)
	results := make(chan result, workers)

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case ready <- struct{}{}:
				case <-quit:
					return nil
				}
				it, ok := <-jobs
				if !ok {
					return nil
				}
				results <- result{item: it, out: c.exec(ctx, it)}
			}
		})
	}

	go func() {
		defer close(jobs)
		defer close(quit)
		for _, it := range c.items {
			<-ready
			if !c.checkpoint() {
				return
			}
			jobs <- it
		}
	}()

	go func() {
		_ = g.Wait()
		close(results)
	}()

	for r := range results {
		c.record(r.item, r.out)
	}
}

// checkpoint 在两项之间调用：暂停时阻塞到 Resume / Stop；返回 false 表示应停止调度。
func (c *Controller) checkpoint() bool {
	c.mu.Lock()
	if c.state != domain.JobPaused {
		running := c.state == domain.JobRunning
		c.mu.Unlock()
		return running
	}
	c.mu.Unlock()

	// 不能持锁发事件：消费者可能在事件回调里调用 Pause/Resume/Stop。
	c.emitState(domain.JobPaused)

	c.mu.Lock()
	for c.state == domain.JobPaused {
		c.cond.Wait()
	}
	running := c.state == domain.JobRunning
	c.mu.Unlock()

	if running {
		c.emitState(domain.JobRunning)
	}
	return running
}

// record 追加结果日志，然后依次发出 result 与 progress 事件。
func (c *Controller) record(it domain.WorkItem, out outcome) {
	rec := domain.ResultRecord{
		Ordinal:   it.Ordinal,
		Success:   out.status == domain.ItemSuccess,
		Status:    out.status,
		Code:      out.code,
		Message:   out.msg,
		Source:    it.Source,
		Target:    it.Target,
		Timestamp: c.opts.Now().UTC(),
	}

	c.mu.Lock()
	c.agg.Add(rec)
	c.items[it.Ordinal].Status = out.status
	done, total := c.agg.Done(), len(c.items)
	c.mu.Unlock()

	if out.status == domain.ItemFailed {
		c.log.Debug("条目失败", "ordinal", it.Ordinal, "source", it.Source, "code", out.code, "err", out.msg)
	} else {
		c.log.Debug("条目完成", "ordinal", it.Ordinal, "status", string(out.status), "target", it.Target)
	}

	c.emit(domain.Event{Kind: domain.EventResult, Result: &rec})
	c.emit(domain.Event{Kind: domain.EventProgress, Progress: &domain.ProgressEvent{
		Percentage: percent(done, total),
		Step:       fmt.Sprintf("%d/%d %s", done, total, filepath.Base(it.Source)),
		Done:       done,
		Total:      total,
	}})
}

// finish 进入终态：结束 job span，发出终态事件并关闭通道。span 必须先于 done 结束。
func (c *Controller) finish(span trace.Span) {
	c.mu.Lock()
	if c.state == domain.JobRunning || c.state == domain.JobPaused {
		c.state = domain.JobCompleted
	}
	c.finished = c.opts.Now()
	final := c.state
	c.report = c.agg.Report(c.plan, final, c.started, c.finished)
	c.cond.Broadcast()
	c.mu.Unlock()

	s := c.report.Summary
	c.log.Info("作业结束", "state", string(final),
		"succeeded", s.Succeeded, "failed", s.Failed, "skipped", s.Skipped, "pending", s.Pending)

	span.SetAttributes(attribute.String("state", string(final)))
	tracing.End(span, nil)

	c.emitState(final)
	close(c.events)
	close(c.done)
}

func (c *Controller) emitState(st domain.JobState) {
	c.mu.Lock()
	done, total := c.agg.Done(), len(c.items)
	c.mu.Unlock()
	c.emit(domain.Event{Kind: domain.EventState, State: st, Progress: &domain.ProgressEvent{
		Percentage: percent(done, total),
		Step:       string(st),
		Done:       done,
		Total:      total,
	}})
}

// emit 分配序号并发送；序号与发送在同一把锁内，保证 Seq 与到达顺序一致。
func (c *Controller) emit(ev domain.Event) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.seq++
	ev.Seq = c.seq
	ev.JobID = c.plan.ID()
	c.events <- ev
}

func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return done * 100 / total
}

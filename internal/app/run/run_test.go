package run

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/John-Robertt/sirala/internal/domain"
)

func renamePlan(n int) (domain.Plan, []string) {
	items := make([]domain.WorkItem, n)
	srcs := make([]string, n)
	for i := range items {
		srcs[i] = fmt.Sprintf("/in/f%d.txt", i)
		items[i] = domain.WorkItem{Source: srcs[i], Action: domain.ActionRename, Target: fmt.Sprintf("/in/n%d.txt", i)}
	}
	return domain.NewPlan("job-1", domain.KindFullReplace, domain.SortNatural, items, nil), srcs
}

func collect(c *Controller) []domain.Event {
	var evs []domain.Event
	for ev := range c.Events() {
		evs = append(evs, ev)
	}
	return evs
}

func states(evs []domain.Event) []domain.JobState {
	var out []domain.JobState
	for _, ev := range evs {
		if ev.Kind == domain.EventState {
			out = append(out, ev.State)
		}
	}
	return out
}

func TestController_SequentialOrderAndEvents(t *testing.T) {
	plan, srcs := renamePlan(3)
	fsys := newFakeFS(srcs...)

	c, err := NewRunner().Start(context.Background(), plan, Options{FS: fsys})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	evs := collect(c)
	rep := c.Wait()

	// running, (result, progress) x3, completed
	if len(evs) != 8 {
		t.Fatalf("事件数量不符合预期：%d", len(evs))
	}
	for i, ev := range evs {
		if ev.Seq != uint64(i+1) || ev.JobID != "job-1" {
			t.Fatalf("第 %d 个事件的 seq/job_id 不符合预期：%+v", i, ev)
		}
	}
	for k := 0; k < 3; k++ {
		res, prog := evs[1+2*k], evs[2+2*k]
		if res.Kind != domain.EventResult || res.Result.Ordinal != k || !res.Result.Success {
			t.Fatalf("第 %d 项 result 事件不符合预期：%+v", k, res)
		}
		if prog.Kind != domain.EventProgress || prog.Progress.Done != k+1 || prog.Progress.Total != 3 {
			t.Fatalf("第 %d 项 progress 事件不符合预期：%+v", k, prog.Progress)
		}
	}
	if last := evs[len(evs)-1]; last.Progress.Percentage != 100 || last.Progress.Step != "completed" {
		t.Fatalf("终态事件不符合预期：%+v", last.Progress)
	}
	if got := states(evs); fmt.Sprint(got) != "[running completed]" {
		t.Fatalf("状态事件不符合预期：%v", got)
	}

	want := domain.Summary{Total: 3, Succeeded: 3}
	if rep.State != domain.JobCompleted || rep.Summary != want {
		t.Fatalf("报告不符合预期：state=%s summary=%+v", rep.State, rep.Summary)
	}
	for i, rec := range rep.Records {
		if rec.Ordinal != i {
			t.Fatalf("日志顺序被打乱：%+v", rep.Records)
		}
	}
	if !fsys.exists("/in/n2.txt") || fsys.exists("/in/f2.txt") {
		t.Fatalf("重命名未生效")
	}
}

func TestController_FailureIsolation(t *testing.T) {
	items := []domain.WorkItem{
		{Source: "/in/missing.txt", Action: domain.ActionRename, Target: "/in/a.txt"},
		{Source: "/in/b.txt", Action: domain.ActionRename, Target: "/in/taken.txt"},
		{Source: "/in/c.txt", Action: domain.ActionMove, Target: "/out/c.txt"},
		{Source: "/in/d.txt", Action: domain.ActionNone, Status: domain.ItemSkipped},
		{Source: "/in/e.txt", Action: domain.ActionRename, Target: "/in/E2.txt"},
	}
	plan := domain.NewPlan("job-2", domain.KindPrefixSort, domain.SortNatural, items, nil)
	fsys := newFakeFS("/in/b.txt", "/in/taken.txt", "/in/c.txt", "/in/d.txt", "/in/e.txt")
	fsys.fail["/in/c.txt"] = errDiskFull

	c, err := NewRunner().Start(context.Background(), plan, Options{FS: fsys, EventBuffer: 64})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	_ = collect(c)
	rep := c.Wait()

	wantCodes := []string{
		domain.ErrCodeSourceNotFound,
		domain.ErrCodeDestinationCollision,
		domain.ErrCodeIOFailure,
		"",
		"",
	}
	wantStatus := []domain.ItemStatus{domain.ItemFailed, domain.ItemFailed, domain.ItemFailed, domain.ItemSkipped, domain.ItemSuccess}
	for i, rec := range rep.Records {
		if rec.Code != wantCodes[i] || rec.Status != wantStatus[i] {
			t.Fatalf("第 %d 项结果不符合预期：%+v", i, rec)
		}
	}
	if want := (domain.Summary{Total: 5, Succeeded: 1, Failed: 3, Skipped: 1}); rep.Summary != want {
		t.Fatalf("计数不符合预期：%+v", rep.Summary)
	}
	if !fsys.exists("/in/b.txt") || fsys.opCount() != 2 {
		t.Fatalf("冲突项不应触碰文件系统；跳过项不应执行：ops=%v", fsys.ops)
	}
}

// 事件通道无缓冲：收到第 2 项的 result 时控制器正阻塞在发送 progress 上，
// 此时 Pause 一定发生在下一次检查点之前。
func TestController_PauseBetweenItemsAndResume(t *testing.T) {
	plan, srcs := renamePlan(5)
	fsys := newFakeFS(srcs...)

	c, err := NewRunner().Start(context.Background(), plan, Options{FS: fsys})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	var evs []domain.Event
	for ev := range c.Events() {
		evs = append(evs, ev)
		switch {
		case ev.Kind == domain.EventResult && ev.Result.Ordinal == 1:
			if err := c.Pause(); err != nil {
				t.Fatalf("不期望错误：%v", err)
			}
		case ev.Kind == domain.EventState && ev.State == domain.JobPaused:
			if got := fsys.opCount(); got != 2 {
				t.Fatalf("暂停期间不应开始新的项：ops=%d", got)
			}
			if c.State() != domain.JobPaused {
				t.Fatalf("状态应为 paused，实际 %s", c.State())
			}
			if err := c.Pause(); !errors.Is(err, domain.ErrInvalidState) {
				t.Fatalf("重复暂停应报 invalid_state：%v", err)
			}
			snap := c.Report()
			if snap.Summary.Succeeded != 2 || snap.Summary.Pending != 3 {
				t.Fatalf("暂停时的快照不符合预期：%+v", snap.Summary)
			}
			if err := c.Resume(); err != nil {
				t.Fatalf("不期望错误：%v", err)
			}
		}
	}

	rep := c.Wait()
	if got := states(evs); fmt.Sprint(got) != "[running paused running completed]" {
		t.Fatalf("状态事件不符合预期：%v", got)
	}
	if rep.Summary.Succeeded != 5 || rep.State != domain.JobCompleted {
		t.Fatalf("恢复后应全部完成：%+v", rep.Summary)
	}
}

func TestController_StopLeavesRestPending(t *testing.T) {
	plan, srcs := renamePlan(5)
	fsys := newFakeFS(srcs...)

	c, err := NewRunner().Start(context.Background(), plan, Options{FS: fsys})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	for ev := range c.Events() {
		if ev.Kind == domain.EventResult && ev.Result.Ordinal == 1 {
			if err := c.Stop(); err != nil {
				t.Fatalf("不期望错误：%v", err)
			}
		}
	}
	rep := c.Wait()

	want := domain.Summary{Total: 5, Succeeded: 2, Pending: 3}
	if rep.State != domain.JobStopped || rep.Summary != want {
		t.Fatalf("停止后的报告不符合预期：state=%s summary=%+v", rep.State, rep.Summary)
	}
	if len(rep.Records) != 2 || fsys.opCount() != 2 {
		t.Fatalf("停止后不应再执行任何项：records=%d ops=%d", len(rep.Records), fsys.opCount())
	}
	if err := c.Resume(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("已停止的作业不能恢复：%v", err)
	}
	if err := c.Stop(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("已停止的作业不能再次停止：%v", err)
	}
	for _, it := range c.Items()[2:] {
		if it.Status != domain.ItemPending {
			t.Fatalf("未执行的项应保持 pending：%+v", it)
		}
	}
}

func TestController_StopWhilePaused(t *testing.T) {
	plan, srcs := renamePlan(3)
	c, err := NewRunner().Start(context.Background(), plan, Options{FS: newFakeFS(srcs...)})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	var evs []domain.Event
	for ev := range c.Events() {
		evs = append(evs, ev)
		if ev.Kind == domain.EventResult && ev.Result.Ordinal == 0 {
			_ = c.Pause()
		}
		if ev.Kind == domain.EventState && ev.State == domain.JobPaused {
			if err := c.Stop(); err != nil {
				t.Fatalf("不期望错误：%v", err)
			}
		}
	}
	rep := c.Wait()
	if rep.State != domain.JobStopped || rep.Summary.Succeeded != 1 || rep.Summary.Pending != 2 {
		t.Fatalf("暂停中停止的报告不符合预期：%s %+v", rep.State, rep.Summary)
	}
	if got := states(evs); fmt.Sprint(got) != "[running paused stopped]" {
		t.Fatalf("状态事件不符合预期：%v", got)
	}
}

func TestController_ContextCancelStops(t *testing.T) {
	plan, srcs := renamePlan(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := NewRunner().Start(ctx, plan, Options{FS: newFakeFS(srcs...)})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	for ev := range c.Events() {
		if ev.Kind == domain.EventResult && ev.Result.Ordinal == 0 {
			_ = c.Pause()
		}
		if ev.Kind == domain.EventState && ev.State == domain.JobPaused {
			cancel()
		}
	}
	if rep := c.Wait(); rep.State != domain.JobStopped || rep.Summary.Pending != 3 {
		t.Fatalf("ctx 取消应等同于 stop：%s %+v", rep.State, rep.Summary)
	}
}

func copyPlan(n int) domain.Plan {
	items := make([]domain.WorkItem, n)
	for i := range items {
		items[i] = domain.WorkItem{Source: "/src/form.pdf", Action: domain.ActionCopy, Target: fmt.Sprintf("/dst/%02d/form.pdf", i)}
	}
	return domain.NewPlan("job-3", domain.KindFanOut, domain.SortNatural, items, nil)
}

// blockFirst 让前 n 次复制阻塞到 release 关闭；n 次都开始后关闭 entered。
func blockFirst(fsys *fakeFS, n int32) (entered, release chan struct{}) {
	entered, release = make(chan struct{}), make(chan struct{})
	var calls atomic.Int32
	fsys.hook = func(string, string) {
		k := calls.Add(1)
		if k > n {
			return
		}
		if k == n {
			close(entered)
		}
		<-release
	}
	return entered, release
}

func TestController_FanOutCompleteness(t *testing.T) {
	const n = 20
	plan := copyPlan(n)
	fsys := newFakeFS("/src/form.pdf")

	var mu sync.Mutex
	active, peak := 0, 0
	fsys.hook = func(string, string) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	}

	c, err := NewRunner().Start(context.Background(), plan, Options{FS: fsys, Workers: 4})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	evs := collect(c)
	rep := c.Wait()

	if rep.Summary != (domain.Summary{Total: n, Succeeded: n}) {
		t.Fatalf("fan-out 计数不符合预期：%+v", rep.Summary)
	}
	var ords []int
	for _, rec := range rep.Records {
		ords = append(ords, rec.Ordinal)
	}
	sort.Ints(ords)
	for i, o := range ords {
		if o != i {
			t.Fatalf("每一项应恰好有一条结果：%v", ords)
		}
	}

	// 每条 result 后紧跟一条 progress，done 单调递增。
	done := 0
	for i, ev := range evs {
		if ev.Kind != domain.EventResult {
			continue
		}
		next := evs[i+1]
		if next.Kind != domain.EventProgress || next.Progress.Done != done+1 {
			t.Fatalf("result 之后应紧跟 progress：%+v", next)
		}
		done++
	}
	if peak > 4 {
		t.Fatalf("并发数超过 workers：%d", peak)
	}
	for i := 0; i < n; i++ {
		if !fsys.exists(fmt.Sprintf("/dst/%02d/form.pdf", i)) {
			t.Fatalf("第 %d 个目录未收到副本", i)
		}
	}
}

// 所有 worker 都在忙时停止：已开始的项完成，其余一项都不再开始。
func TestController_FanOutStopWhileWorkersBusy(t *testing.T) {
	for _, workers := range []int{1, 2} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			fsys := newFakeFS("/src/form.pdf")
			entered, release := blockFirst(fsys, int32(workers))

			c, err := NewRunner().Start(context.Background(), copyPlan(6), Options{FS: fsys, Workers: workers})
			if err != nil {
				t.Fatalf("不期望错误：%v", err)
			}
			go func() {
				<-entered
				if err := c.Stop(); err != nil {
					t.Errorf("不期望错误：%v", err)
				}
				close(release)
			}()
			_ = collect(c)
			rep := c.Wait()

			want := domain.Summary{Total: 6, Succeeded: workers, Pending: 6 - workers}
			if rep.State != domain.JobStopped || rep.Summary != want {
				t.Fatalf("停止后的报告不符合预期：state=%s summary=%+v", rep.State, rep.Summary)
			}
			sum := rep.Summary
			if got := fsys.opCount(); got != workers || sum.Succeeded+sum.Failed+sum.Skipped != got {
				t.Fatalf("停止后不应再开始新的复制：ops=%d summary=%+v", got, sum)
			}
		})
	}
}

func TestController_FanOutPauseWhileWorkersBusy(t *testing.T) {
	const workers = 2
	fsys := newFakeFS("/src/form.pdf")
	entered, release := blockFirst(fsys, workers)

	c, err := NewRunner().Start(context.Background(), copyPlan(6), Options{FS: fsys, Workers: workers})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	go func() {
		<-entered
		if err := c.Pause(); err != nil {
			t.Errorf("不期望错误：%v", err)
		}
		close(release)
	}()

	var evs []domain.Event
	for ev := range c.Events() {
		evs = append(evs, ev)
		if ev.Kind != domain.EventState || ev.State != domain.JobPaused {
			continue
		}
		// 给残留的调度一点时间：暂停期间不应有新的复制开始。
		time.Sleep(20 * time.Millisecond)
		if got := fsys.opCount(); got > workers {
			t.Fatalf("暂停期间不应开始新的项：ops=%d", got)
		}
		if err := c.Resume(); err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
	}

	rep := c.Wait()
	if rep.State != domain.JobCompleted || rep.Summary.Succeeded != 6 || fsys.opCount() != 6 {
		t.Fatalf("恢复后应全部完成：%s %+v ops=%d", rep.State, rep.Summary, fsys.opCount())
	}
	if got := states(evs); fmt.Sprint(got) != "[running paused running completed]" {
		t.Fatalf("状态事件不符合预期：%v", got)
	}
}

func TestController_FanOutContextCancelStops(t *testing.T) {
	fsys := newFakeFS("/src/form.pdf")
	entered, release := blockFirst(fsys, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := NewRunner().Start(ctx, copyPlan(4), Options{FS: fsys, Workers: 1})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	go func() {
		<-entered
		cancel()
		// 取消经由 context.AfterFunc 异步生效。
		for c.State() != domain.JobStopped {
			time.Sleep(time.Millisecond)
		}
		close(release)
	}()
	_ = collect(c)
	if rep := c.Wait(); rep.State != domain.JobStopped || rep.Summary.Succeeded != 1 || rep.Summary.Pending != 3 {
		t.Fatalf("ctx 取消应等同于 stop：%s %+v", rep.State, rep.Summary)
	}
}

func TestRunner_SingleActiveJob(t *testing.T) {
	plan, srcs := renamePlan(2)
	fsys := newFakeFS(srcs...)
	release := make(chan struct{})
	fsys.hook = func(string, string) { <-release }

	r := NewRunner()
	c, err := r.Start(context.Background(), plan, Options{FS: fsys, EventBuffer: 16})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := r.Start(context.Background(), plan, Options{FS: fsys}); !errors.Is(err, domain.ErrJobAlreadyRunning) {
		t.Fatalf("期望 job_already_running，实际：%v", err)
	}
	if r.Active() != c {
		t.Fatalf("Active 应返回当前作业")
	}

	close(release)
	_ = collect(c)
	c.Wait()

	plan2, srcs2 := renamePlan(1)
	c2, err := r.Start(context.Background(), plan2, Options{FS: newFakeFS(srcs2...)})
	if err != nil {
		t.Fatalf("上一个作业结束后应允许启动：%v", err)
	}
	_ = collect(c2)
	c2.Wait()
}

func TestController_InvalidTransitionsAndOptions(t *testing.T) {
	if _, err := NewRunner().Start(context.Background(), domain.Plan{}, Options{Workers: MaxWorkers + 1}); domain.Code(err) != domain.ErrCodeConfig {
		t.Fatalf("workers 超限应报 config_error：%v", err)
	}

	plan, srcs := renamePlan(1)
	c, err := NewRunner().Start(context.Background(), plan, Options{FS: newFakeFS(srcs...)})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := c.Resume(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("running 时 Resume 应报 invalid_state：%v", err)
	}
	_ = collect(c)
	if rep := c.Wait(); rep.State != domain.JobCompleted {
		t.Fatalf("作业应完成：%s", rep.State)
	}
	if err := c.Pause(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("终态时 Pause 应报 invalid_state：%v", err)
	}
}

func TestController_EmptyPlanCompletes(t *testing.T) {
	plan := domain.NewPlan("job-empty", domain.KindFanOut, domain.SortNatural, nil, nil)
	c, err := NewRunner().Start(context.Background(), plan, Options{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	evs := collect(c)
	rep := c.Wait()
	if rep.State != domain.JobCompleted || rep.Summary.Total != 0 || len(evs) != 2 {
		t.Fatalf("空计划应直接完成：%s %+v events=%d", rep.State, rep.Summary, len(evs))
	}
}

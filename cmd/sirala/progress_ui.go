package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/sirala/internal/app/run"
	"github.com/John-Robertt/sirala/internal/config"
	"github.com/John-Robertt/sirala/internal/domain"
	"github.com/John-Robertt/sirala/internal/infra/reportstore"
)

var _ run.Sink = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间无条目完成时也会定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time
	lastItem    time.Time

	total int
	done  int
	ok    int
	fail  int
	skip  int
	state domain.JobState

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool

	now func() time.Time
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
		now:                time.Now,
	}
}

func (p *progressUI) Handle(ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.startedAt.IsZero() {
		p.startedAt = now
		p.lastItem = now
	}
	if ev.Progress != nil {
		p.total = ev.Progress.Total
	}

	switch ev.Kind {
	case domain.EventState:
		p.onStateLocked(ev.State)
	case domain.EventResult:
		if ev.Result != nil {
			p.onResultLocked(*ev.Result, now)
		}
	case domain.EventProgress:
		if ev.Progress != nil {
			p.done = ev.Progress.Done
		}
		return nil
	}
	p.lastPrinted = now
	return nil
}

func (p *progressUI) onStateLocked(st domain.JobState) {
	prev := p.state
	p.state = st
	switch st {
	case domain.JobRunning:
		if prev == domain.JobPaused {
			fmt.Fprintln(p.w, "已恢复")
		} else {
			fmt.Fprintf(p.w, "执行: total_items=%d（p 暂停，r 恢复，s 停止）\n\n", p.total)
		}
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case domain.JobPaused:
		fmt.Fprintf(p.w, "已暂停：done=%d/%d（输入 r 恢复，s 停止）\n", p.done, p.total)
	case domain.JobStopped, domain.JobCompleted:
		p.stopTickerLocked()
		fmt.Fprintf(p.w, "\n结束: state=%s done=%d/%d ok=%d fail=%d skip=%d pending=%d elapsed=%s\n",
			st, p.done, p.total, p.ok, p.fail, p.skip, p.total-p.done, formatElapsed(p.now().Sub(p.startedAt)),
		)
	}
}

func (p *progressUI) onResultLocked(rec domain.ResultRecord, now time.Time) {
	idx := p.done + 1
	dur := now.Sub(p.lastItem)
	p.lastItem = now

	src, dst := rec.Source, rec.Target
	if filepath.Dir(src) == filepath.Dir(dst) {
		src, dst = filepath.Base(src), filepath.Base(dst)
	}

	switch rec.Status {
	case domain.ItemSuccess:
		p.ok++
		fmt.Fprintf(p.w, "[%d/%d] OK %s -> %s (%s)\n", idx, p.total, src, dst, formatShortDuration(dur))
	case domain.ItemSkipped:
		p.skip++
		fmt.Fprintf(p.w, "[%d/%d] SKIP %s\n", idx, p.total, filepath.Base(rec.Source))
	default:
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] FAIL %s %s: %s\n", idx, p.total, filepath.Base(rec.Source), rec.Code, truncate(rec.Message, 160))
	}
}

// Close 停止 keepalive（作业异常结束、没有终态事件时兜底）。
func (p *progressUI) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) stopTickerLocked() {
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stopCh := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.state == domain.JobRunning && p.now().Sub(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d skip=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.fail, p.skip, formatElapsed(p.now().Sub(p.startedAt)),
					)
					p.lastPrinted = p.now()
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

// printHeader 输出生效配置（只在交互终端调用）。
func printHeader(w io.Writer, eff config.EffectiveConfig, plan domain.Plan) {
	mode := "dry-run"
	modeHint := " (不重命名/不复制/不移动)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(w, "[%s] sirala %s (%s)\n", time.Now().Format("15:04:05"), eff.Kind, mode)
	fmt.Fprintln(w, "配置（生效）:")
	fmt.Fprintf(w, "  job: %s\n", eff.JobFile)
	fmt.Fprintf(w, "  job_id: %s\n", plan.ID())
	fmt.Fprintf(w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(w, "  sort: %s by %s\n", sortLabel(eff.Sort), eff.Sort.By)

	switch eff.Kind {
	case config.KindFullReplace:
		fmt.Fprintf(w, "  source: %s (%s)\n", eff.Source, eff.FullReplace.Entries)
		fmt.Fprintf(w, "  names: %s column=%s start_row=%d\n", truncate(eff.Names.Table, 120), eff.Names.Column, eff.Names.StartRow)
		if eff.FullReplace.DestDir != "" {
			fmt.Fprintf(w, "  dest_dir: %s\n", eff.FullReplace.DestDir)
		}
		fmt.Fprintf(w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	case config.KindFanOut:
		fmt.Fprintf(w, "  file: %s\n", eff.FanOut.File)
		fmt.Fprintf(w, "  dest_root: %s (recursive=%s)\n", eff.FanOut.DestRoot, onOff(eff.FanOut.Recursive))
		fmt.Fprintf(w, "  exclude_dirs: %s + 固定排除 %s/\n", formatStringListJSON(eff.FanOut.ExcludeDirs), reportstore.Dir)
		fmt.Fprintf(w, "  workers: %d\n", eff.Workers)
	case config.KindPrefixSort:
		action := "move"
		if eff.PrefixSort.Copy {
			action = "copy"
		}
		fmt.Fprintf(w, "  source: %s\n", eff.Source)
		fmt.Fprintf(w, "  dirs_root: %s prefix_len=%d action=%s\n", eff.PrefixSort.DirsRoot, eff.PrefixSort.PrefixLen, action)
	}
	if eff.NATSURL != "" {
		fmt.Fprintf(w, "  nats: %s subject=%s.*\n", formatProxy(eff.NATSURL), eff.NATSSubject)
	}
	if eff.Apply {
		fmt.Fprintf(w, "  report: %s\n", filepath.Join(eff.ReportRoot(), reportstore.Dir))
	}
	fmt.Fprintln(w)
}

func sortLabel(sc config.SortConfig) string {
	if sc.Strategy == "alphabet" {
		return "alphabet(" + sc.Alphabet + ")"
	}
	return sc.Strategy
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// formatProxy 只展示 scheme + host，不回显凭据。
func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/John-Robertt/sirala/internal/app"
	"github.com/John-Robertt/sirala/internal/app/planner"
	"github.com/John-Robertt/sirala/internal/app/run"
	"github.com/John-Robertt/sirala/internal/config"
	"github.com/John-Robertt/sirala/internal/domain"
	"github.com/John-Robertt/sirala/internal/infra/eventbus"
	"github.com/John-Robertt/sirala/internal/infra/reportstore"
	"github.com/John-Robertt/sirala/internal/infra/tracing"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage(os.Stdout)
		return
	}

	switch args[0] {
	case "run":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		code := runCmd(ctx, args[1:], osStreams())
		stop()
		if code != 0 {
			os.Exit(code)
		}
	case "report":
		if code := reportCmd(args[1:], osStreams()); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage(os.Stderr)
		os.Exit(2)
	}
}

// streams 把进程的标准输入输出抽象出来，测试可以直接在进程内运行命令。
type streams struct {
	stdout io.Writer
	stderr io.Writer
	// stdoutTTY=false 时 stdout 必须且仅输出一个 JSON。
	stdoutTTY bool
	stderrTTY bool
	// progress 为 nil 表示非交互（不输出进度）。
	progress io.Writer
	// control 为 nil 表示不读取 p/r/s 控制指令。
	control io.Reader
	getwd   func() (string, error)
}

func osStreams() streams {
	s := streams{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		stdoutTTY: isTTY(os.Stdout),
		stderrTTY: isTTY(os.Stderr),
		getwd:     os.Getwd,
	}
	s.progress = pickProgressWriter()
	if s.progress != nil && isTTY(os.Stdin) {
		s.control = os.Stdin
	}
	return s
}

func runCmd(ctx context.Context, args []string, s streams) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage(s.stdout)
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(s.stderr, "参数错误：%v\n\n", err)
		printRunUsage(s.stderr)
		return 2
	}

	cwd, err := s.getwd()
	if err != nil {
		fmt.Fprintf(s.stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	if err := config.LoadDotEnv(cwd); err != nil {
		fmt.Fprintf(s.stderr, "读取 .env 失败：%v\n", err)
	}

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		JobFile:    ra.JobFile,
		Apply:      ra.Apply,
		ApplySet:   ra.ApplySet,
		Workers:    ra.Workers,
		WorkersSet: ra.WorkersSet,
		Verbose:    ra.Verbose,
	})
	if err != nil {
		emitError(s, config.Code(err), err)
		return 1
	}

	log := newLogger(s.stderr, eff.LogLevel, s.stderrTTY)

	shutdownTracing, err := tracing.Init("sirala", eff.Trace, s.stderr)
	if err != nil {
		log.Warn("trace 初始化失败，已关闭", "err", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("trace 刷新失败", "err", err)
		}
	}()

	plan, err := app.BuildPlan(ctx, eff, app.Deps{Logger: log})
	if err != nil {
		emitError(s, domain.Code(err), err)
		return 1
	}

	if !eff.Apply {
		rep := run.DryRun(plan, time.Now())
		if s.progress != nil {
			printHeader(s.progress, eff, plan)
			printPreview(s.progress, eff, plan)
		}
		emitReport(s, rep)
		return 0
	}

	rep, err := apply(ctx, eff, plan, log, s)
	if err != nil {
		emitError(s, domain.Code(err), err)
		return 1
	}

	path, werr := reportstore.New(eff.ReportRoot(), false).Write(rep)
	if werr != nil {
		fmt.Fprintf(s.stderr, "写入报告失败：%v\n", werr)
	}
	emitReport(s, rep)
	if s.progress != nil && werr == nil {
		fmt.Fprintf(s.progress, "report: %s\n", path)
	}

	if werr != nil || rep.Summary.Failed > 0 || rep.Summary.Pending > 0 {
		return 1
	}
	return 0
}

// apply 启动作业，把事件分发给进度 UI / NATS，并等待终态报告。
func apply(ctx context.Context, eff config.EffectiveConfig, plan domain.Plan, log *slog.Logger, s streams) (domain.Report, error) {
	var sinks []run.Sink
	if s.progress != nil {
		printHeader(s.progress, eff, plan)
		ui := newProgressUI(s.progress)
		defer ui.Close()
		sinks = append(sinks, ui)
	}
	if eff.NATSURL != "" {
		bus, err := eventbus.Connect(eff.NATSURL)
		if err != nil {
			log.Warn("连接 NATS 失败，事件不转发", "url", eff.NATSURL, "err", err)
		} else {
			defer bus.Close()
			sinks = append(sinks, eventbus.NewSink(bus, eff.NATSSubject))
		}
	}

	c, err := run.NewRunner().Start(ctx, plan, run.Options{
		Workers:     eff.Workers,
		EventBuffer: 64,
		Logger:      log,
	})
	if err != nil {
		return domain.Report{}, err
	}
	if s.control != nil {
		go readControl(s.control, c, s.progress, log)
	}

	if err := run.Drain(c.Events(), sinks...); err != nil {
		log.Warn("事件分发出错", "err", err)
	}
	return c.Wait(), nil
}

type runArgs struct {
	JobFile string

	Apply    bool
	ApplySet bool

	Workers    int
	WorkersSet bool

	Verbose bool
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	setWorkers := func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("--workers 必须是整数，实际是 %q", v)
		}
		if n < 1 || n > config.MaxWorkers {
			return fmt.Errorf("--workers 必须在 1..%d 之间，实际 %d", config.MaxWorkers, n)
		}
		ra.Workers, ra.WorkersSet = n, true
		return nil
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--apply":
			ra.Apply = true
			ra.ApplySet = true
		case strings.HasPrefix(a, "--apply="):
			v := strings.TrimPrefix(a, "--apply=")
			switch v {
			case "true":
				ra.Apply = true
			case "false":
				ra.Apply = false
			default:
				return runArgs{}, fmt.Errorf("--apply 只能是 true 或 false，实际是 %q", v)
			}
			ra.ApplySet = true
		case a == "--workers":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--workers 需要一个值")
			}
			i++
			if err := setWorkers(args[i]); err != nil {
				return runArgs{}, err
			}
		case strings.HasPrefix(a, "--workers="):
			if err := setWorkers(strings.TrimPrefix(a, "--workers=")); err != nil {
				return runArgs{}, err
			}
		case a == "--verbose" || a == "-v":
			ra.Verbose = true
		case strings.HasPrefix(a, "-"):
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ra.JobFile != "" {
				return runArgs{}, fmt.Errorf("重复的作业文件：%q 与 %q", ra.JobFile, a)
			}
			ra.JobFile = a
		}
	}
	return ra, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  sirala run [job.json] [--apply[=true|false]] [--workers N] [--verbose]
  sirala report [dir] [job_id]

命令：
  run       按作业文件生成计划并执行（默认 dry-run）
  report    查看 <dir>/.sirala 下已落盘的报告

使用 "sirala run --help" 查看详细说明。
`)
}

func printRunUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  sirala run [job.json] [--apply[=true|false]] [--workers N] [--verbose]

参数：
  job.json    作业文件（未指定则读取当前目录下的 sirala.json）
  --apply     真正执行重命名/复制/移动（默认 dry-run）；支持 --apply=false 覆盖作业文件中的 apply=true
  --workers   fan-out 复制的并发数（1..32，默认 4）
  --verbose   输出逐项调试日志
  -h, --help  显示帮助

执行中（交互终端）：输入 p 暂停，r 恢复，s 停止；Ctrl+C 在当前项完成后停止。
`)
}

// newLogger 在交互终端上输出彩色日志（tint），否则输出 slog 文本格式。
func newLogger(w io.Writer, level string, color bool) *slog.Logger {
	var lv slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	if color {
		return slog.New(tint.NewHandler(w, &tint.Options{Level: lv, TimeFormat: time.TimeOnly}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv}))
}

func emitReport(s streams, rep domain.Report) {
	sum := rep.Summary
	line := fmt.Sprintf("完成：state=%s total=%d succeeded=%d failed=%d skipped=%d pending=%d\n",
		rep.State, sum.Total, sum.Succeeded, sum.Failed, sum.Skipped, sum.Pending,
	)
	if rep.DryRun {
		line = fmt.Sprintf("预览：items=%d（dry-run，未做任何改动；加 --apply 执行）\n", sum.Total)
	}

	if s.stdoutTTY {
		fmt.Fprint(s.stdout, line)
		for _, rec := range rep.Records {
			if rec.Status != domain.ItemFailed {
				continue
			}
			fmt.Fprintf(s.stderr, "#%d %s %s: %s\n", rec.Ordinal+1, rec.Source, rec.Code, rec.Message)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 Report JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(s.stdout)
	_ = enc.Encode(rep)
	fmt.Fprint(s.stderr, line)
}

// errorReport 是计划生成前失败时 stdout 上唯一的 JSON。
type errorReport struct {
	ErrorCode string `json:"error_code"`
	Error     string `json:"error"`
}

func emitError(s streams, code string, err error) {
	if code == "" {
		code = domain.ErrCodeIOFailure
	}
	if s.stdoutTTY {
		fmt.Fprintf(s.stderr, "%s: %v\n", code, err)
		return
	}
	_ = json.NewEncoder(s.stdout).Encode(errorReport{ErrorCode: code, Error: err.Error()})
	fmt.Fprintf(s.stderr, "%s: %v\n", code, err)
}

func printPreview(w io.Writer, eff config.EffectiveConfig, plan domain.Plan) {
	rows := planner.Preview(plan)
	fmt.Fprintf(w, "计划（%d 项）:\n", len(rows))
	for _, r := range rows {
		fmt.Fprintln(w, r.String())
	}

	if plan.Kind() == domain.KindFullReplace {
		return
	}
	cmp, err := app.Comparator(eff.Sort)
	if err != nil {
		return
	}
	groups, unmatched := app.GroupByTargetDir(plan.Items(), cmp)
	fmt.Fprintf(w, "目标目录: %d 个", len(groups))
	if len(unmatched) > 0 {
		fmt.Fprintf(w, "，未匹配 %d 项", len(unmatched))
	}
	fmt.Fprintln(w)
	for _, g := range groups {
		fmt.Fprintf(w, "  %s  (%d)\n", relTo(eff.ReportRoot(), g.Dir), len(g.Ordinals))
	}
}

func relTo(base, p string) string {
	if rel, err := filepath.Rel(base, p); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return p
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() io.Writer {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout
	}
	return nil
}

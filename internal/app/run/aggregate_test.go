package run

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/sirala/internal/domain"
	"github.com/John-Robertt/sirala/internal/infra/fsx"
)

func TestAggregator_PendingAndOrder(t *testing.T) {
	a := NewAggregator(4)
	a.Add(domain.ResultRecord{Ordinal: 2, Status: domain.ItemSuccess})
	a.Add(domain.ResultRecord{Ordinal: 0, Status: domain.ItemFailed, Code: domain.ErrCodeIOFailure})

	if want := (domain.Summary{Total: 4, Succeeded: 1, Failed: 1, Pending: 2}); a.Summary() != want {
		t.Fatalf("计数不符合预期：%+v", a.Summary())
	}
	recs := a.Records()
	if recs[0].Ordinal != 2 || recs[1].Ordinal != 0 {
		t.Fatalf("日志应保持追加顺序：%+v", recs)
	}
	recs[0].Ordinal = 99
	if a.Records()[0].Ordinal != 2 {
		t.Fatalf("Records 应返回副本")
	}
}

func TestDryRun_AllPending(t *testing.T) {
	items := []domain.WorkItem{
		{Source: "/a/x", Action: domain.ActionCopy, Target: "/b/x"},
		{Source: "/a/y", Action: domain.ActionNone, Status: domain.ItemSkipped},
	}
	plan := domain.NewPlan("dry", domain.KindPrefixSort, domain.SortDefault, items, nil)
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.FixedZone("UTC+4", 4*3600))

	rep := DryRun(plan, now)
	if !rep.DryRun || rep.State != domain.JobIdle || len(rep.Items) != 2 {
		t.Fatalf("dry-run 报告不符合预期：%+v", rep)
	}
	if rep.Summary.Pending != 2 || len(rep.Records) != 0 {
		t.Fatalf("dry-run 不应产生任何结果：%+v", rep.Summary)
	}
	if rep.StartedAt.Location() != time.UTC {
		t.Fatalf("时间应统一为 UTC")
	}
}

func TestDrain_FansOutAndJoinsErrors(t *testing.T) {
	ch := make(chan domain.Event, 3)
	for i := 1; i <= 3; i++ {
		ch <- domain.Event{Seq: uint64(i), Kind: domain.EventProgress}
	}
	close(ch)

	var seen []uint64
	boom := errors.New("publish failed")
	calls := 0
	err := Drain(ch,
		SinkFunc(func(ev domain.Event) error { seen = append(seen, ev.Seq); return nil }),
		nil,
		SinkFunc(func(domain.Event) error { calls++; return boom }),
	)
	if !errors.Is(err, boom) {
		t.Fatalf("应返回 sink 的错误：%v", err)
	}
	if len(seen) != 3 || calls != 3 {
		t.Fatalf("出错的 sink 不应中断分发：seen=%v calls=%d", seen, calls)
	}
}

func TestExecItem_OnDisk(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		return p
	}
	fsys := fsx.OS{}

	t.Run("rename", func(t *testing.T) {
		src := write("report.txt", "r")
		dst := filepath.Join(dir, "Ali_Aliyev.txt")
		out := execItem(fsys, domain.WorkItem{Source: src, Action: domain.ActionRename, Target: dst})
		if out.status != domain.ItemSuccess {
			t.Fatalf("重命名应成功：%+v", out)
		}
		if _, err := os.Stat(dst); err != nil {
			t.Fatalf("目标应存在：%v", err)
		}
	})

	t.Run("rename collision keeps both", func(t *testing.T) {
		src := write("one.txt", "1")
		dst := write("two.txt", "2")
		out := execItem(fsys, domain.WorkItem{Source: src, Action: domain.ActionRename, Target: dst})
		if out.code != domain.ErrCodeDestinationCollision {
			t.Fatalf("期望 destination_collision，实际：%+v", out)
		}
		if b, _ := os.ReadFile(dst); string(b) != "2" {
			t.Fatalf("已有目标不应被覆盖")
		}
	})

	t.Run("copy overwrites and creates parents", func(t *testing.T) {
		src := write("form.pdf", "new")
		dst := write("out/a/form.pdf", "old")
		out := execItem(fsys, domain.WorkItem{Source: src, Action: domain.ActionCopy, Target: dst})
		if out.status != domain.ItemSuccess {
			t.Fatalf("复制应成功：%+v", out)
		}
		if b, _ := os.ReadFile(dst); string(b) != "new" {
			t.Fatalf("目标应被覆盖，实际 %q", b)
		}
		fresh := filepath.Join(dir, "out", "b", "c", "form.pdf")
		if out := execItem(fsys, domain.WorkItem{Source: src, Action: domain.ActionCopy, Target: fresh}); out.status != domain.ItemSuccess {
			t.Fatalf("应自动创建父目录：%+v", out)
		}
	})

	t.Run("move into directory", func(t *testing.T) {
		src := write("Aliyev_notes.txt", "n")
		dst := filepath.Join(dir, "Aliyev", "Aliyev_notes.txt")
		out := execItem(fsys, domain.WorkItem{Source: src, Action: domain.ActionMove, Target: dst})
		if out.status != domain.ItemSuccess {
			t.Fatalf("移动应成功：%+v", out)
		}
		if _, err := os.Stat(src); !os.IsNotExist(err) {
			t.Fatalf("源应已被移走：%v", err)
		}
	})

	t.Run("unchanged name", func(t *testing.T) {
		src := write("same.txt", "s")
		out := execItem(fsys, domain.WorkItem{Source: src, Action: domain.ActionRename, Target: src})
		if out.status != domain.ItemSuccess {
			t.Fatalf("名字不变应视为成功：%+v", out)
		}
	})

	t.Run("missing source", func(t *testing.T) {
		out := execItem(fsys, domain.WorkItem{Source: filepath.Join(dir, "nope"), Action: domain.ActionRename, Target: filepath.Join(dir, "x")})
		if out.code != domain.ErrCodeSourceNotFound {
			t.Fatalf("期望 source_not_found，实际：%+v", out)
		}
	})
}

// Package app 把生效配置装配为执行计划：比较器、条目扫描、名字表、计划构建。
package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/John-Robertt/sirala/internal/app/planner"
	"github.com/John-Robertt/sirala/internal/collate"
	"github.com/John-Robertt/sirala/internal/config"
	"github.com/John-Robertt/sirala/internal/domain"
	"github.com/John-Robertt/sirala/internal/infra/httpx"
	"github.com/John-Robertt/sirala/internal/infra/tracing"
	"github.com/John-Robertt/sirala/internal/names"
	"github.com/John-Robertt/sirala/internal/scan"
	"github.com/John-Robertt/sirala/internal/tabular"
)

// Deps 是装配计划时的外部依赖。零值可用。
type Deps struct {
	// HTTPClient 用于远程 html 名字表；nil 时按 eff.ProxyURL 新建。
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Comparator 按排序配置构造比较器（alphabet 策略会载入内置 + 额外字母表）。
func Comparator(sc config.SortConfig) (collate.Comparator, error) {
	strategy := domain.SortStrategy(sc.Strategy)
	if strategy != domain.SortAlphabet {
		return collate.New(strategy, nil)
	}
	reg, err := collate.NewRegistry(sc.AlphabetFiles...)
	if err != nil {
		return collate.Comparator{}, domain.Errorf(domain.ErrCodeConfig, "载入字母表失败：%v", err)
	}
	p, ok := reg.Get(sc.Alphabet)
	if !ok {
		return collate.Comparator{}, domain.Errorf(domain.ErrCodeConfig, "未知字母表 %q（可用：%v）", sc.Alphabet, reg.Names())
	}
	return collate.New(strategy, p)
}

// BuildPlan 按作业类型扫描目录、解析名字并构建不可变计划。不触碰任何文件内容。
func BuildPlan(ctx context.Context, eff config.EffectiveConfig, d Deps) (plan domain.Plan, err error) {
	ctx, span := tracing.StartSpan(ctx, "plan.build", attribute.String("kind", eff.Kind))
	defer func() {
		span.SetAttributes(attribute.Int("items", plan.Len()))
		tracing.End(span, err)
	}()

	log := d.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cmp, err := Comparator(eff.Sort)
	if err != nil {
		return domain.Plan{}, err
	}

	switch eff.Kind {
	case config.KindFullReplace:
		plan, err = buildFullReplace(ctx, eff, cmp, d)
	case config.KindFanOut:
		plan, err = buildFanOut(eff, cmp)
	case config.KindPrefixSort:
		plan, err = buildPrefixSort(eff, cmp)
	default:
		err = domain.Errorf(domain.ErrCodeConfig, "未知作业类型 %q", eff.Kind)
	}
	if err != nil {
		return domain.Plan{}, err
	}

	log.Info("计划已生成", "job_id", plan.ID(), "kind", string(plan.Kind()), "items", plan.Len(), "sort", cmp.String())
	return plan, nil
}

func buildFullReplace(ctx context.Context, eff config.EffectiveConfig, cmp collate.Comparator, d Deps) (domain.Plan, error) {
	fr := eff.FullReplace
	kind := scan.KindFiles
	if fr.Entries == "dirs" {
		kind = scan.KindDirs
	}
	entries, err := scan.ListEntries(eff.Source, scan.Filter{
		Kind:    kind,
		Exts:    fr.Exts,
		DirSize: eff.Sort.By == string(collate.BySize),
	})
	if err != nil {
		return domain.Plan{}, err
	}
	entries = collate.SortEntriesBy(entries, collate.SortKey(eff.Sort.By), cmp)

	client := d.HTTPClient
	if client == nil {
		if client, err = httpx.NewClient(eff.ProxyURL); err != nil {
			return domain.Plan{}, domain.Errorf(domain.ErrCodeConfig, "代理配置无效：%v", err)
		}
	}
	table, err := tabular.Open(ctx, eff.Names.Table, tabular.Options{
		Sheet:    eff.Names.Sheet,
		Selector: eff.Names.Selector,
		Client:   client,
	})
	if err != nil {
		return domain.Plan{}, err
	}
	src, err := names.NewSource(table, eff.Names.StartRow, eff.Names.Column, eff.Names.Separator)
	if err != nil {
		return domain.Plan{}, err
	}

	return planner.FullReplace(entries, src, planner.FullReplaceParams{
		Cmp:     cmp,
		StartAt: fr.StartAt,
		Limit:   fr.Limit,
		Edit:    planner.Edit(fr.Edit),
		EditLen: fr.EditLen,
		DestDir: fr.DestDir,
	})
}

func buildFanOut(eff config.EffectiveConfig, cmp collate.Comparator) (domain.Plan, error) {
	fo := eff.FanOut
	source, err := scan.Stat(fo.File)
	if err != nil {
		return domain.Plan{}, err
	}

	var dirs []domain.Entry
	if fo.Recursive {
		dirs, err = scan.Subdirs(fo.DestRoot, fo.ExcludeDirs)
	} else {
		dirs, err = scan.ChildDirs(fo.DestRoot)
	}
	if err != nil {
		return domain.Plan{}, err
	}
	return planner.FanOut(source, collate.SortEntries(dirs, cmp), planner.FanOutParams{Cmp: cmp})
}

func buildPrefixSort(eff config.EffectiveConfig, cmp collate.Comparator) (domain.Plan, error) {
	ps := eff.PrefixSort
	files, err := scan.ListEntries(eff.Source, scan.Filter{Kind: scan.KindFiles, Exts: ps.Exts})
	if err != nil {
		return domain.Plan{}, err
	}
	dirs, err := scan.ChildDirs(ps.DirsRoot)
	if err != nil {
		return domain.Plan{}, err
	}
	return planner.PrefixSort(collate.SortEntries(files, cmp), dirs, planner.PrefixSortParams{
		Cmp:  cmp,
		K:    ps.PrefixLen,
		Copy: ps.Copy,
	})
}

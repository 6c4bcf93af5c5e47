// Package tabular 定义名字来源所需的最小表格能力（Table），并提供 csv / html / xlsx 适配器。
//
// 解析器只通过 Table 读取单元格：表格二进制格式只在适配器内部出现。
package tabular

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/sirala/internal/domain"
)

type CellKind int

const (
	KindEmpty CellKind = iota
	KindText
	KindNumber
	KindTime
	KindBool
)

// Cell 是一个已解码的单元格值。只有与 Kind 对应的字段有意义。
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
	Time   time.Time
	Bool   bool
}

func Text(s string) Cell {
	if s == "" {
		return Cell{}
	}
	return Cell{Kind: KindText, Text: s}
}

func Number(f float64) Cell  { return Cell{Kind: KindNumber, Number: f} }
func Time(t time.Time) Cell  { return Cell{Kind: KindTime, Time: t} }
func Bool(b bool) Cell       { return Cell{Kind: KindBool, Bool: b} }
func (c Cell) IsEmpty() bool { return c.Kind == KindEmpty }

// Table 是按 0-based (row, col) 随机访问的只读表格。
//
// 越界（row >= NumRows() 或列超出该行）返回空单元格，不是错误。
type Table interface {
	NumRows() int
	Cell(row, col int) (Cell, error)
}

// Grid 是内存中的表格实现（csv / html / xlsx 都解码到它）。
type Grid struct {
	rows [][]Cell
}

func NewGrid(rows [][]Cell) *Grid { return &Grid{rows: rows} }

// TextGrid 用纯文本行构造 Grid（空串为空单元格）。
func TextGrid(rows [][]string) *Grid {
	out := make([][]Cell, len(rows))
	for i, r := range rows {
		out[i] = make([]Cell, len(r))
		for j, s := range r {
			out[i][j] = Text(s)
		}
	}
	return &Grid{rows: out}
}

func (g *Grid) NumRows() int { return len(g.rows) }

func (g *Grid) Cell(row, col int) (Cell, error) {
	if row < 0 || col < 0 {
		return Cell{}, fmt.Errorf("单元格坐标无效：(%d,%d)", row, col)
	}
	if row >= len(g.rows) || col >= len(g.rows[row]) {
		return Cell{}, nil
	}
	return g.rows[row][col], nil
}

// Options 是打开表格时的可选参数。
type Options struct {
	Sheet     string       // xlsx：工作表名，空 = 第一个
	Selector  string       // html：CSS 选择器，空 = 第一个 <table>
	Delimiter rune         // csv：分隔符，0 = 按扩展名（.tsv 为 Tab，其余为逗号）
	Client    *http.Client // 远程 html：nil 时使用 httpx 默认 client
}

// Open 按扩展名或 http(s):// 前缀选择适配器。
func Open(ctx context.Context, ref string, opts Options) (Table, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.Errorf(domain.ErrCodeConfig, "名字表路径不能为空")
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return FromURL(ctx, opts.Client, ref, opts.Selector)
	}

	switch ext := strings.ToLower(filepath.Ext(ref)); ext {
	case ".xlsx", ".xlsm":
		return OpenXLSX(ref, opts.Sheet)
	case ".csv", ".tsv":
		d := opts.Delimiter
		if d == 0 {
			d = ','
			if ext == ".tsv" {
				d = '\t'
			}
		}
		return OpenCSV(ref, d)
	case ".html", ".htm":
		return OpenHTML(ref, opts.Selector)
	default:
		return nil, domain.Errorf(domain.ErrCodeConfig, "不支持的名字表格式 %q（支持 .xlsx .xlsm .csv .tsv .html .htm 或 http(s) 地址）", ext)
	}
}

func ioError(path string, err error) error {
	return &domain.Error{Code: domain.ErrCodeIOFailure, Msg: "读取名字表失败", Path: path, Err: err}
}

// Package names 从表格的一列解析出有序的目标名字序列。
//
// 解析是惰性的、有限的、可重复的：同一张未变化的表，两次遍历得到相同序列；
// 解析过程不产生任何副作用。
package names

import (
	"iter"
	"strconv"

	"github.com/John-Robertt/sirala/internal/domain"
	"github.com/John-Robertt/sirala/internal/tabular"
)

// DateLayout 是日期单元格转文本的格式（日.月.年）。
const DateLayout = "02.01.2006"

// Name 是一个已解析的名字及其 1-based 行号。
type Name struct {
	Row   int
	Value string
}

// Source 描述“从哪张表的哪一列、第几行开始”读名字。
type Source struct {
	Table     tabular.Table
	StartRow  int // 1-based
	Column    int // 0-based，见 ParseColumn
	Separator string
}

// NewSource 校验参数并构造 Source。column 为列字母。
func NewSource(t tabular.Table, startRow int, column, sep string) (Source, error) {
	if t == nil {
		return Source{}, domain.Errorf(domain.ErrCodeConfig, "名字表不能为空")
	}
	if startRow < 1 {
		return Source{}, domain.Errorf(domain.ErrCodeConfig, "起始行必须 >= 1，实际 %d", startRow)
	}
	col, err := ParseColumn(column)
	if err != nil {
		return Source{}, err
	}
	if err := ValidateSeparator(sep); err != nil {
		return Source{}, err
	}
	return Source{Table: t, StartRow: startRow, Column: col, Separator: sep}, nil
}

// All 返回名字序列。遇到第一个空单元格或表尾时结束；
// 出错时产出 (Name{}, err) 后结束。
func (s Source) All() iter.Seq2[Name, error] {
	return func(yield func(Name, error) bool) {
		if s.Table == nil {
			yield(Name{}, domain.Errorf(domain.ErrCodeConfig, "名字表不能为空"))
			return
		}
		start := s.StartRow
		if start < 1 {
			start = 1
		}
		sep := s.Separator
		if sep == "" {
			sep = DefaultSeparator
		}

		for row := start - 1; row < s.Table.NumRows(); row++ {
			cell, err := s.Table.Cell(row, s.Column)
			if err != nil {
				yield(Name{}, &domain.Error{Code: domain.ErrCodeIOFailure, Msg: "读取单元格 " + ColumnName(s.Column) + strconv.Itoa(row+1) + " 失败", Row: row + 1, Err: err})
				return
			}
			v, err := Clean(CellText(cell), sep, row+1)
			if err != nil {
				yield(Name{}, err)
				return
			}
			if v == "" {
				return
			}
			if !yield(Name{Row: row + 1, Value: v}, nil) {
				return
			}
		}
	}
}

// Take 最多解析 n 个名字（n <= 0 表示全部）。
func (s Source) Take(n int) ([]Name, error) {
	var out []Name
	for name, err := range s.All() {
		if err != nil {
			return nil, err
		}
		out = append(out, name)
		if n > 0 && len(out) >= n {
			break
		}
	}
	return out, nil
}

// Values 只取名字文本。
func Values(ns []Name) []string {
	out := make([]string, len(ns))
	for i := range ns {
		out[i] = ns[i].Value
	}
	return out
}

// CellText 把单元格转为文本：数字取最短十进制表示（3 而不是 3.0），
// 日期为 02.01.2006，布尔为 TRUE/FALSE。
func CellText(c tabular.Cell) string {
	switch c.Kind {
	case tabular.KindText:
		return c.Text
	case tabular.KindNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case tabular.KindTime:
		return c.Time.Format(DateLayout)
	case tabular.KindBool:
		if c.Bool {
			return "TRUE"
		}
		return "FALSE"
	default:
		return ""
	}
}

package tabular

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/John-Robertt/sirala/internal/domain"
)

// OpenXLSX 读取工作簿中的一张表（sheet 为空取第一张）并解码为 Grid。
//
// 单元格解码：
// - 共享字符串 / 内联字符串：文本
// - 布尔：Bool
// - 数字：Number；若套用了日期格式则为 Time
// - 其余（公式缓存值、错误值）：按显示文本
func OpenXLSX(path, sheet string) (*Grid, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, ioError(path, err)
	}
	defer f.Close()

	if sheet = strings.TrimSpace(sheet); sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, domain.Errorf(domain.ErrCodeConfig, "工作簿中没有工作表：%s", path)
		}
		sheet = list[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, domain.Errorf(domain.ErrCodeConfig, "工作表 %q 不存在：%s", sheet, path)
	}

	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, ioError(path, err)
	}
	shown, err := f.GetRows(sheet)
	if err != nil {
		return nil, ioError(path, err)
	}

	d := xlsxDecoder{f: f, sheet: sheet, styles: map[int]bool{}}
	rows := make([][]Cell, len(raw))
	for r := range raw {
		rows[r] = make([]Cell, len(raw[r]))
		for c, v := range raw[r] {
			if v == "" {
				continue
			}
			text := v
			if r < len(shown) && c < len(shown[r]) {
				text = shown[r][c]
			}
			rows[r][c] = d.decode(r, c, v, text)
		}
	}
	return NewGrid(rows), nil
}

type xlsxDecoder struct {
	f     *excelize.File
	sheet string
	// styleID -> 是否日期格式
	styles map[int]bool
}

func (d *xlsxDecoder) decode(r, c int, raw, text string) Cell {
	name, err := excelize.CoordinatesToCellName(c+1, r+1)
	if err != nil {
		return Text(text)
	}
	typ, err := d.f.GetCellType(d.sheet, name)
	if err != nil {
		return Text(text)
	}

	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
		return Text(text)
	case excelize.CellTypeBool:
		return Bool(raw == "1" || strings.EqualFold(raw, "true"))
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return Time(t)
		}
		return Text(text)
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Text(text)
		}
		if d.isDateStyle(name) {
			if t, err := excelize.ExcelDateToTime(n, false); err == nil {
				return Time(t)
			}
		}
		return Number(n)
	default:
		return Text(text)
	}
}

func (d *xlsxDecoder) isDateStyle(cell string) bool {
	id, err := d.f.GetCellStyle(d.sheet, cell)
	if err != nil || id == 0 {
		return false
	}
	if v, ok := d.styles[id]; ok {
		return v
	}
	v := false
	if st, err := d.f.GetStyle(id); err == nil && st != nil {
		v = isDateNumFmt(st.NumFmt, st.CustomNumFmt)
	}
	d.styles[id] = v
	return v
}

// isDateNumFmt：内置日期格式 14-22、45-47；自定义格式去掉引号文本后含 y/d 即视为日期。
func isDateNumFmt(id int, custom *string) bool {
	if (id >= 14 && id <= 22) || (id >= 45 && id <= 47) {
		return true
	}
	if custom == nil {
		return false
	}
	var sb strings.Builder
	quoted := false
	for _, r := range strings.ToLower(*custom) {
		if r == '"' {
			quoted = !quoted
			continue
		}
		if !quoted {
			sb.WriteRune(r)
		}
	}
	return strings.ContainsAny(sb.String(), "yd")
}

package tabular

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/sirala/internal/domain"
	"github.com/John-Robertt/sirala/internal/infra/httpx"
)

// colspan 上限：防止异常页面把一行撑成巨大切片。
const maxColspan = 1000

// ParseHTML 把 HTML 中的一张表解码为 Grid。
//
// 规则：
// - selector 为空时取第一个 <table>
// - 只取属于该表的 tr（嵌套表的行不算）
// - td/th 都是单元格；colspan=n 展开为 1 个值 + n-1 个空单元格
func ParseHTML(r io.Reader, selector string) (*Grid, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &domain.Error{Code: domain.ErrCodeConfig, Msg: "HTML 无效", Err: err}
	}
	if strings.TrimSpace(selector) == "" {
		selector = "table"
	}
	tbl := doc.Find(selector).First()
	if tbl.Length() == 0 {
		return nil, domain.Errorf(domain.ErrCodeConfig, "HTML 中未找到表格（selector=%q）", selector)
	}
	if !tbl.Is("table") {
		if inner := tbl.Find("table").First(); inner.Length() > 0 {
			tbl = inner
		}
	}

	var rows [][]Cell
	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if !tr.Closest("table").IsSelection(tbl) {
			return
		}
		var row []Cell
		tr.ChildrenFiltered("td,th").Each(func(_ int, td *goquery.Selection) {
			row = append(row, Text(normSpace(td.Text())))
			if span, ok := td.Attr("colspan"); ok {
				n, err := strconv.Atoi(strings.TrimSpace(span))
				if err == nil && n > 1 {
					if n > maxColspan {
						n = maxColspan
					}
					row = append(row, make([]Cell, n-1)...)
				}
			}
		})
		rows = append(rows, row)
	})
	return NewGrid(rows), nil
}

func OpenHTML(path, selector string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioError(path, err)
	}
	defer f.Close()
	return ParseHTML(f, selector)
}

// FromURL 抓取远程页面（例如“发布到网页”的在线表格）并解码其中的表。
func FromURL(ctx context.Context, c *http.Client, url, selector string) (*Grid, error) {
	if c == nil {
		var err error
		if c, err = httpx.NewClient(""); err != nil {
			return nil, err
		}
	}
	b, err := httpx.Get(ctx, c, url)
	if err != nil {
		return nil, ioError(url, err)
	}
	return ParseHTML(bytes.NewReader(b), selector)
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

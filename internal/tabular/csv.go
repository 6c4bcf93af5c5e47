package tabular

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/John-Robertt/sirala/internal/domain"
)

// ReadCSV 读取整个 CSV；所有单元格都是文本。行可以不等长。
func ReadCSV(r io.Reader, comma rune) (*Grid, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, &domain.Error{Code: domain.ErrCodeConfig, Msg: "CSV 格式无效", Err: err}
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return TextGrid(rows), nil
}

func OpenCSV(path string, comma rune) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioError(path, err)
	}
	defer f.Close()
	return ReadCSV(f, comma)
}

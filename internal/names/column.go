package names

import (
	"strings"

	"github.com/John-Robertt/sirala/internal/domain"
)

// MaxColumn 是最大列号（0-based，对应 XFD，与 xlsx 的列上限一致）。
const MaxColumn = 16383

// ParseColumn 把列字母（A、B、…、Z、AA、…）转为 0-based 列号。大小写不敏感。
func ParseColumn(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, domain.Errorf(domain.ErrCodeConfig, "列字母不能为空")
	}
	n := 0
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
			r -= 'a' - 'A'
		default:
			return 0, domain.Errorf(domain.ErrCodeConfig, "列字母无效：%q（只允许 A-Z）", s)
		}
		n = n*26 + int(r-'A'+1)
		if n-1 > MaxColumn {
			return 0, domain.Errorf(domain.ErrCodeConfig, "列字母超出范围：%q（最大 XFD）", s)
		}
	}
	return n - 1, nil
}

// ColumnName 是 ParseColumn 的逆运算，用于单元格错误信息（如 "B12"）。
func ColumnName(col int) string {
	if col < 0 {
		return ""
	}
	var b []byte
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

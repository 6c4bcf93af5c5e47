package names

import (
	"strings"
	"unicode"

	"github.com/John-Robertt/sirala/internal/domain"
)

// DefaultSeparator 替换名字内部的空白段。
const DefaultSeparator = "_"

// 文件名中不允许出现的字符（取各平台的并集）。
const illegalChars = `<>:"/\|?*`

// Clean 对单元格文本做后处理：去首尾空白，内部每段连续空白替换为 sep；
// 含非法字符 / 控制字符，或结果为 "." ".." 时返回 InvalidNameCharacter（带 1-based 行号）。
//
// 返回 "" 表示单元格为空（只有空白也算空）。
func Clean(raw, sep string, row int) (string, error) {
	fields := strings.FieldsFunc(raw, unicode.IsSpace)
	if len(fields) == 0 {
		return "", nil
	}
	s := strings.Join(fields, sep)

	if i := strings.IndexAny(s, illegalChars); i >= 0 {
		return "", invalidName(row, "包含非法字符 %q：%q", s[i:i+1], s)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", invalidName(row, "包含控制字符 %U：%q", r, s)
		}
	}
	if s == "." || s == ".." {
		return "", invalidName(row, "名字不能是 %q", s)
	}
	return s, nil
}

// ValidateSeparator：分隔符本身也会进入文件名，必须合法。
func ValidateSeparator(sep string) error {
	if sep == "" {
		return nil
	}
	if strings.ContainsAny(sep, illegalChars) || strings.IndexFunc(sep, unicode.IsControl) >= 0 {
		return domain.Errorf(domain.ErrCodeConfig, "分隔符 %q 包含文件名非法字符", sep)
	}
	if strings.IndexFunc(sep, unicode.IsSpace) >= 0 {
		return domain.Errorf(domain.ErrCodeConfig, "分隔符 %q 不能包含空白", sep)
	}
	return nil
}

func invalidName(row int, format string, args ...any) error {
	e := domain.Errorf(domain.ErrCodeInvalidNameCharacter, format, args...)
	e.Row = row
	return e
}

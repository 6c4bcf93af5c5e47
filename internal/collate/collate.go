// Package collate 提供条目名的排序比较器：默认（逐字符）、自然（数字段按数值）、
// 自定义字母表（数字段按数值 + 字母按字母表排名）。
//
// 比较是纯函数；同一配置下是全序（相等即“排名相同”），平局由稳定排序保留原顺序。
package collate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/sirala/internal/domain"
)

// Comparator 是某个排序策略 + 字母表的比较器（值类型，可安全并发使用）。
type Comparator struct {
	strategy domain.SortStrategy
	profile  *Profile
}

// New 构造比较器。alphabet 策略必须给出 profile；其余策略忽略 profile。
func New(strategy domain.SortStrategy, profile *Profile) (Comparator, error) {
	switch strategy {
	case domain.SortDefault, domain.SortNatural:
		return Comparator{strategy: strategy}, nil
	case domain.SortAlphabet:
		if profile == nil {
			return Comparator{}, domain.Errorf(domain.ErrCodeConfig, "alphabet 排序需要指定字母表")
		}
		return Comparator{strategy: strategy, profile: profile}, nil
	case "":
		return Comparator{strategy: domain.SortNatural}, nil
	default:
		return Comparator{}, domain.Errorf(domain.ErrCodeConfig, "未知排序策略 %q", strategy)
	}
}

func (c Comparator) Strategy() domain.SortStrategy { return c.strategy }

// Profile 返回字母表（非 alphabet 策略为 nil）。
func (c Comparator) Profile() *Profile { return c.profile }

// Fold 返回排名前的规范形式：NFC + 大小写折叠（字母表策略按其语言折叠）。
// prefix 匹配也使用同一折叠，保证排序与匹配对同一字母的看法一致。
func (c Comparator) Fold(s string) string {
	if c.profile != nil {
		return c.profile.Fold(s)
	}
	return foldDefault(s)
}

// token：要么是一个非数字码点，要么是一段最长 ASCII 数字（digits 非空）。
type token struct {
	r      rune
	digits string
}

// Key 是名字预先切分好的比较键；排序时每个名字只切分一次。
type Key []token

// Key 计算 name 的比较键。
func (c Comparator) Key(name string) Key {
	s := c.Fold(name)
	out := make(Key, 0, len(s))
	grouping := c.strategy != domain.SortDefault

	i := 0
	for i < len(s) {
		if grouping && isDigit(rune(s[i])) {
			j := i
			for j < len(s) && isDigit(rune(s[j])) {
				j++
			}
			out = append(out, token{digits: s[i:j]})
			i = j
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		out = append(out, token{r: r})
		i += size
	}
	return out
}

// Compare 返回 -1/0/1。
func (c Comparator) Compare(a, b string) int {
	return c.CompareKeys(c.Key(a), c.Key(b))
}

// CompareKeys 按 token 逐个比较；较短的前缀排在前面。
func (c Comparator) CompareKeys(a, b Key) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if d := c.compareToken(a[i], b[i]); d != 0 {
			return d
		}
	}
	return cmpInt(len(a), len(b))
}

func (c Comparator) compareToken(a, b token) int {
	aNum, bNum := a.digits != "", b.digits != ""
	switch {
	case aNum && bNum:
		return compareDigits(a.digits, b.digits)
	case aNum:
		// 所有数字在两种排名表中都占据连续的一段，用 '0' 的排名代表整段。
		return cmpInt(c.rank('0'), c.rank(b.r))
	case bNum:
		return cmpInt(c.rank(a.r), c.rank('0'))
	default:
		return cmpInt(c.rank(a.r), c.rank(b.r))
	}
}

func (c Comparator) rank(r rune) int {
	if c.profile != nil {
		return c.profile.rankOf(r)
	}
	return int(r)
}

// compareDigits 按数值比较两段十进制数字（去前导零后先比长度），不会溢出。
func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if d := cmpInt(len(a), len(b)); d != 0 {
		return d
	}
	return strings.Compare(a, b)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func (c Comparator) String() string {
	if c.profile != nil {
		return fmt.Sprintf("%s(%s)", c.strategy, c.profile.Name)
	}
	return string(c.strategy)
}

package collate

import (
	"embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var builtinFS embed.FS

// Profile 是一份自定义字母表：有序字母列表 → 排名。
//
// 字母表是纯数据：新增字母表只需新增一个 YAML 文件，不需要改比较算法。
type Profile struct {
	Name     string
	Language language.Tag

	letters []rune
	rank    map[rune]int
}

type profileFile struct {
	Name     string   `yaml:"name"`
	Language string   `yaml:"language"`
	Letters  []string `yaml:"letters"`
}

// ParseProfile 解析 YAML 字母表。
//
// 约束：
// - 每个字母在 NFC + 按语言小写后必须恰好是一个码点
// - 字母不可重复，不可是 ASCII 数字（数字永远按数值段比较）
func ParseProfile(b []byte) (*Profile, error) {
	var pf profileFile
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return nil, fmt.Errorf("字母表 YAML 无效：%w", err)
	}
	name := strings.ToLower(strings.TrimSpace(pf.Name))
	if name == "" {
		return nil, fmt.Errorf("字母表缺少 name")
	}
	if len(pf.Letters) == 0 {
		return nil, fmt.Errorf("字母表 %q 没有字母", name)
	}

	tag := language.Und
	if s := strings.TrimSpace(pf.Language); s != "" {
		t, err := language.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("字母表 %q 的 language 无效：%w", name, err)
		}
		tag = t
	}

	p := &Profile{
		Name:     name,
		Language: tag,
		letters:  make([]rune, 0, len(pf.Letters)),
		rank:     make(map[rune]int, len(pf.Letters)),
	}
	for _, raw := range pf.Letters {
		s := p.Fold(strings.TrimSpace(raw))
		if utf8.RuneCountInString(s) != 1 {
			return nil, fmt.Errorf("字母表 %q：%q 不是单个字母", name, raw)
		}
		r, _ := utf8.DecodeRuneInString(s)
		if isDigit(r) {
			return nil, fmt.Errorf("字母表 %q：不允许数字 %q", name, raw)
		}
		if _, dup := p.rank[r]; dup {
			return nil, fmt.Errorf("字母表 %q：重复的字母 %q", name, raw)
		}
		p.rank[r] = len(p.letters)
		p.letters = append(p.letters, r)
	}
	return p, nil
}

// Letters 返回字母表副本（按排名顺序）。
func (p *Profile) Letters() []rune { return append([]rune(nil), p.letters...) }

// Fold 对 s 做 NFC 规范化，再按字母表语言小写（例如 az：I→ı，İ→i）。
func (p *Profile) Fold(s string) string {
	if p == nil {
		return foldDefault(s)
	}
	// cases.Caser 有状态，不可跨 goroutine 共享：每次新建。
	c := cases.Lower(p.Language)
	return norm.NFC.String(c.String(norm.NFC.String(s)))
}

// rankOf：字母表内的字母按顺序排名；其余字符排在所有字母之后，按码点。
func (p *Profile) rankOf(r rune) int {
	if i, ok := p.rank[r]; ok {
		return i
	}
	return len(p.letters) + int(r)
}

func foldDefault(s string) string {
	return norm.NFC.String(cases.Fold().String(norm.NFC.String(s)))
}

// Registry 是字母表的只读注册表（按 name 索引）。
type Registry struct {
	byName map[string]*Profile
}

// NewRegistry 载入内置字母表（profiles/*.yaml），再追加 extra 文件。
func NewRegistry(extraFiles ...string) (Registry, error) {
	r := Registry{byName: map[string]*Profile{}}

	entries, err := builtinFS.ReadDir("profiles")
	if err != nil {
		return Registry{}, err
	}
	for _, e := range entries {
		b, err := builtinFS.ReadFile(path.Join("profiles", e.Name()))
		if err != nil {
			return Registry{}, err
		}
		if err := r.add(b, e.Name()); err != nil {
			return Registry{}, err
		}
	}

	for _, f := range extraFiles {
		b, err := os.ReadFile(f)
		if err != nil {
			return Registry{}, fmt.Errorf("读取字母表失败：%w", err)
		}
		if err := r.add(b, f); err != nil {
			return Registry{}, err
		}
	}
	return r, nil
}

func (r Registry) add(b []byte, src string) error {
	p, err := ParseProfile(b)
	if err != nil {
		return fmt.Errorf("%s：%w", src, err)
	}
	if _, ok := r.byName[p.Name]; ok {
		return fmt.Errorf("%s：重复的字母表 %q", src, p.Name)
	}
	r.byName[p.Name] = p
	return nil
}

func (r Registry) Get(name string) (*Profile, bool) {
	if r.byName == nil {
		return nil, false
	}
	p, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Names 返回已注册的字母表名（已排序）。
func (r Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

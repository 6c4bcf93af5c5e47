package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// ErrCodeNotFound 表示作业文件不存在（显式给出的路径，或无参运行时 cwd 下的 sirala.json）。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示作业文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// FileName 是无参运行时在 cwd 下查找的作业文件名。
	FileName = "sirala.json"

	DefaultWorkers   = 4
	MaxWorkers       = 32
	DefaultStartRow  = 1
	DefaultColumn    = "A"
	DefaultSeparator = "_"
	DefaultSubject   = "sirala.events"
)

// Kind 是作业类型。
const (
	KindFullReplace = "full_replace"
	KindFanOut      = "fan_out"
	KindPrefixSort  = "prefix_sort"
)

// 环境变量（.env 中同样有效）。
const (
	EnvNATSURL     = "SIRALA_NATS_URL"
	EnvNATSSubject = "SIRALA_NATS_SUBJECT"
	EnvLogLevel    = "SIRALA_LOG_LEVEL"
	EnvHTTPProxy   = "SIRALA_HTTP_PROXY"
	EnvWorkers     = "SIRALA_WORKERS"
	EnvApply       = "SIRALA_APPLY"
	// EnvTrace 选择 trace 导出器：none（默认）或 stdout。
	EnvTrace = "SIRALA_TRACE"
)

// CLIArgs 是 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 job.apply=true。
type CLIArgs struct {
	JobFile string

	Apply    bool
	ApplySet bool

	Workers    int
	WorkersSet bool

	Verbose bool
}

// FileConfig 对应 sirala.json 的解析结构。
type FileConfig struct {
	Kind    string `json:"kind"`
	Source  string `json:"source"`
	Apply   *bool  `json:"apply"`
	Workers int    `json:"workers"`

	Sort        SortConfig        `json:"sort"`
	Names       NamesConfig       `json:"names"`
	FullReplace FullReplaceConfig `json:"full_replace"`
	FanOut      FanOutConfig      `json:"fan_out"`
	PrefixSort  PrefixSortConfig  `json:"prefix_sort"`

	Proxy *ProxyConfig `json:"proxy"`
	NATS  *NATSConfig  `json:"nats"`
}

type SortConfig struct {
	// Strategy：default | natural | alphabet；默认 natural。
	Strategy string `json:"strategy"`
	// Alphabet 是 alphabet 策略使用的字母表名（如 az）。
	Alphabet      string   `json:"alphabet"`
	AlphabetFiles []string `json:"alphabet_files"`
	// By：name | date | size；只影响条目列表顺序。默认 name。
	By string `json:"by"`
}

type NamesConfig struct {
	// Table 是本地文件路径（csv/tsv/xlsx/html）或 http(s) URL。
	Table     string `json:"table"`
	Sheet     string `json:"sheet"`
	Selector  string `json:"selector"`
	StartRow  int    `json:"start_row"`
	Column    string `json:"column"`
	Separator string `json:"separator"`
}

type FullReplaceConfig struct {
	// Entries：files | dirs；默认 files。
	Entries string   `json:"entries"`
	Exts    []string `json:"exts"`
	StartAt string   `json:"start_at"`
	Limit   int      `json:"limit"`
	Edit    string   `json:"edit"`
	EditLen int      `json:"edit_len"`
	DestDir string   `json:"dest_dir"`
}

type FanOutConfig struct {
	File        string   `json:"file"`
	DestRoot    string   `json:"dest_root"`
	ExcludeDirs []string `json:"exclude_dirs"`
	// Recursive=false 时只复制到 dest_root 的直接子目录；默认 true。
	Recursive *bool `json:"recursive"`
}

type PrefixSortConfig struct {
	DirsRoot  string   `json:"dirs_root"`
	PrefixLen int      `json:"prefix_len"`
	Copy      bool     `json:"copy"`
	Exts      []string `json:"exts"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

type NATSConfig struct {
	URL     string `json:"url"`
	Subject string `json:"subject"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
// 所有路径都已是绝对路径。
type EffectiveConfig struct {
	JobFile string
	Kind    string
	Source  string
	Apply   bool
	Workers int
	Verbose bool

	Sort        SortConfig
	Names       NamesConfig
	FullReplace FullReplaceConfig
	FanOut      EffectiveFanOut
	PrefixSort  PrefixSortConfig

	ProxyURL    string
	NATSURL     string
	NATSSubject string
	LogLevel    string
	// Trace 是 trace 导出器名（none / stdout）。
	Trace string
}

type EffectiveFanOut struct {
	File        string
	DestRoot    string
	ExcludeDirs []string
	Recursive   bool
}

// ReportRoot 是报告落盘的根目录（<root>/.sirala/）。
func (c EffectiveConfig) ReportRoot() string {
	if c.Kind == KindFanOut {
		return c.FanOut.DestRoot
	}
	return c.Source
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到作业文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：作业文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：作业文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadDotEnv 读取 dir/.env（可选），已存在的环境变量不会被覆盖。
func LoadDotEnv(dir string) error {
	p := filepath.Join(dir, ".env")
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(p); err != nil {
		return &Error{Code: ErrCodeInvalid, Path: p, Err: err}
	}
	return nil
}

// LoadEffective 发现并读取作业文件，然后与 CLI 参数、环境变量合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供作业文件：必须存在
// 2) CLI 未提供：必须读取 <cwd>/sirala.json
//
// 覆盖优先级（固定）：CLI > 作业文件 > 环境变量 > 内置默认。
// 作业文件中的相对路径以作业文件所在目录为基准。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	if strings.TrimSpace(cli.JobFile) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.JobFile)
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}

	eff, err := merge(filepath.Dir(cfgPath), cli, fc)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	eff.JobFile = cfgPath
	return eff, nil
}

func merge(base string, cli CLIArgs, fc FileConfig) (EffectiveConfig, error) {
	eff := EffectiveConfig{
		Kind:    strings.TrimSpace(fc.Kind),
		Verbose: cli.Verbose,
	}

	switch eff.Kind {
	case KindFullReplace, KindFanOut, KindPrefixSort:
	case "":
		return eff, fmt.Errorf("kind 不能为空")
	default:
		return eff, fmt.Errorf("kind 只能是 %s / %s / %s，实际是 %q", KindFullReplace, KindFanOut, KindPrefixSort, eff.Kind)
	}

	// apply：CLI > job > env > 默认 false
	eff.Apply = getenvBool(EnvApply, false)
	if fc.Apply != nil {
		eff.Apply = *fc.Apply
	}
	if cli.ApplySet {
		eff.Apply = cli.Apply
	}

	// workers：CLI > job > env > 默认；超出范围报错（与执行控制器一致）。
	eff.Workers = getenvInt(EnvWorkers, DefaultWorkers)
	if fc.Workers != 0 {
		eff.Workers = fc.Workers
	}
	if cli.WorkersSet {
		eff.Workers = cli.Workers
	}
	if eff.Workers < 1 || eff.Workers > MaxWorkers {
		return eff, fmt.Errorf("workers 必须在 1..%d 之间，实际 %d", MaxWorkers, eff.Workers)
	}

	eff.Sort = fc.Sort
	if eff.Sort.Strategy == "" {
		eff.Sort.Strategy = "natural"
	}
	switch eff.Sort.Strategy {
	case "default", "natural":
	case "alphabet":
		if strings.TrimSpace(eff.Sort.Alphabet) == "" {
			return eff, fmt.Errorf("sort.strategy=alphabet 时必须指定 sort.alphabet")
		}
	default:
		return eff, fmt.Errorf("sort.strategy 只能是 default / natural / alphabet，实际是 %q", eff.Sort.Strategy)
	}
	if eff.Sort.By == "" {
		eff.Sort.By = "name"
	}
	switch eff.Sort.By {
	case "name", "date", "size":
	default:
		return eff, fmt.Errorf("sort.by 只能是 name / date / size，实际是 %q", eff.Sort.By)
	}
	eff.Sort.AlphabetFiles = absAll(base, fc.Sort.AlphabetFiles)

	if p := strings.TrimSpace(fc.Source); p != "" {
		eff.Source = absCleanFrom(base, p)
	}

	var err error
	switch eff.Kind {
	case KindFullReplace:
		err = mergeFullReplace(base, fc, &eff)
	case KindFanOut:
		err = mergeFanOut(base, fc, &eff)
	case KindPrefixSort:
		err = mergePrefixSort(base, fc, &eff)
	}
	if err != nil {
		return eff, err
	}

	// proxy：job > env
	eff.ProxyURL = getenv(EnvHTTPProxy, "")
	if fc.Proxy != nil && strings.TrimSpace(fc.Proxy.URL) != "" {
		eff.ProxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if eff.ProxyURL != "" {
		if _, err := url.Parse(eff.ProxyURL); err != nil {
			return eff, fmt.Errorf("proxy.url 无效：%w", err)
		}
	}

	eff.NATSURL = getenv(EnvNATSURL, "")
	eff.NATSSubject = getenv(EnvNATSSubject, DefaultSubject)
	if fc.NATS != nil {
		if u := strings.TrimSpace(fc.NATS.URL); u != "" {
			eff.NATSURL = u
		}
		if s := strings.TrimSpace(fc.NATS.Subject); s != "" {
			eff.NATSSubject = s
		}
	}

	eff.Trace = strings.ToLower(getenv(EnvTrace, "none"))
	switch eff.Trace {
	case "none", "stdout":
	default:
		return eff, fmt.Errorf("%s 只能是 none / stdout，实际是 %q", EnvTrace, eff.Trace)
	}

	eff.LogLevel = strings.ToLower(getenv(EnvLogLevel, "info"))
	if cli.Verbose {
		eff.LogLevel = "debug"
	}
	return eff, nil
}

func mergeFullReplace(base string, fc FileConfig, eff *EffectiveConfig) error {
	if eff.Source == "" {
		return fmt.Errorf("full_replace 需要 source 目录")
	}
	if err := mergeNames(base, fc.Names, eff); err != nil {
		return err
	}

	fr := fc.FullReplace
	if fr.Entries == "" {
		fr.Entries = "files"
	}
	if fr.Entries != "files" && fr.Entries != "dirs" {
		return fmt.Errorf("full_replace.entries 只能是 files 或 dirs，实际是 %q", fr.Entries)
	}
	if fr.Edit == "" {
		fr.Edit = "whole"
	}
	if fr.Limit < 0 {
		return fmt.Errorf("full_replace.limit 不能为负数")
	}
	if d := strings.TrimSpace(fr.DestDir); d != "" {
		fr.DestDir = absCleanFrom(base, d)
	}
	fr.Exts = append([]string(nil), fr.Exts...)
	eff.FullReplace = fr
	return nil
}

func mergeNames(base string, nc NamesConfig, eff *EffectiveConfig) error {
	ref := strings.TrimSpace(nc.Table)
	if ref == "" {
		return fmt.Errorf("names.table 不能为空")
	}
	if !isURL(ref) {
		ref = absCleanFrom(base, ref)
	}
	nc.Table = ref
	if nc.StartRow == 0 {
		nc.StartRow = DefaultStartRow
	}
	if nc.StartRow < 1 {
		return fmt.Errorf("names.start_row 必须 >= 1，实际 %d", nc.StartRow)
	}
	if strings.TrimSpace(nc.Column) == "" {
		nc.Column = DefaultColumn
	}
	if nc.Separator == "" {
		nc.Separator = DefaultSeparator
	}
	eff.Names = nc
	return nil
}

func mergeFanOut(base string, fc FileConfig, eff *EffectiveConfig) error {
	fo := fc.FanOut
	file := strings.TrimSpace(fo.File)
	if file == "" {
		return fmt.Errorf("fan_out.file 不能为空")
	}
	root := strings.TrimSpace(fo.DestRoot)
	if root == "" {
		return fmt.Errorf("fan_out.dest_root 不能为空")
	}
	recursive := true
	if fo.Recursive != nil {
		recursive = *fo.Recursive
	}
	eff.FanOut = EffectiveFanOut{
		File:        absCleanFrom(base, file),
		DestRoot:    absCleanFrom(base, root),
		ExcludeDirs: absAll(base, fo.ExcludeDirs),
		Recursive:   recursive,
	}
	if eff.Source == "" {
		eff.Source = filepath.Dir(eff.FanOut.File)
	}
	return nil
}

func mergePrefixSort(base string, fc FileConfig, eff *EffectiveConfig) error {
	if eff.Source == "" {
		return fmt.Errorf("prefix_sort 需要 source 目录")
	}
	ps := fc.PrefixSort
	if strings.TrimSpace(ps.DirsRoot) == "" {
		return fmt.Errorf("prefix_sort.dirs_root 不能为空")
	}
	if ps.PrefixLen < 1 {
		return fmt.Errorf("prefix_sort.prefix_len 必须 >= 1，实际 %d", ps.PrefixLen)
	}
	ps.DirsRoot = absCleanFrom(base, ps.DirsRoot)
	ps.Exts = append([]string(nil), ps.Exts...)
	eff.PrefixSort = ps
	return nil
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func absAll(base string, ps []string) []string {
	var out []string
	for _, p := range ps {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, absCleanFrom(base, p))
	}
	return out
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 作业文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误，由调用方决定）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

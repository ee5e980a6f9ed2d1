package lottery

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Tier 奖级, 1 为头奖, TierNone 表示未中奖
type Tier int

const (
	TierNone Tier = iota
	Tier1
	Tier2
	Tier3
	Tier4
	Tier5
	Tier6
	Tier7
)

// Tiers 按奖级顺序列出全部奖级
var Tiers = []Tier{Tier1, Tier2, Tier3, Tier4, Tier5, Tier6, Tier7}

func (t Tier) String() string {
	if t == TierNone {
		return "none"
	}
	return strconv.Itoa(int(t))
}

// Label 展示用名称
func (t Tier) Label() string {
	if t == TierNone {
		return "No prize"
	}
	return "Group " + strconv.Itoa(int(t))
}

// Valid 是否是 1..7 之间的奖级
func (t Tier) Valid() bool { return t >= Tier1 && t <= Tier7 }

// PrizeTable 奖级到奖金文本的映射
type PrizeTable map[Tier]string

// Get 返回奖金文本, 缺失或空值返回 PrizeUnavailable
func (p PrizeTable) Get(t Tier) string {
	if !t.Valid() {
		return PrizeUnavailable
	}
	v, ok := p[t]
	if !ok || strings.TrimSpace(v) == "" {
		return PrizeUnavailable
	}
	return v
}

// DrawRecord 一期开奖结果, 入库后不可修改
type DrawRecord struct {
	DrawNo           int        `json:"draw_no"`
	DrawDate         string     `json:"draw_date"`
	WinningNumbers   []int      `json:"winning_numbers"`
	AdditionalNumber int        `json:"additional_number"`
	PrizeTable       PrizeTable `json:"prize_table,omitempty"`
}

// Validate 校验开奖记录
func (r *DrawRecord) Validate() error {
	if r == nil {
		return wrapError(ErrInvalidDrawRecord, nil, "record is nil")
	}
	if r.DrawNo <= 0 {
		return wrapError(ErrInvalidDrawRecord, nil, fmt.Sprintf("draw number %d must be positive", r.DrawNo))
	}
	if len(r.WinningNumbers) != NumbersPerDraw {
		return wrapError(ErrInvalidDrawRecord, nil,
			fmt.Sprintf("draw %d has %d winning numbers, want %d", r.DrawNo, len(r.WinningNumbers), NumbersPerDraw))
	}

	seen := make(map[int]bool, NumbersPerDraw)
	for _, n := range r.WinningNumbers {
		if n < MinNumber || n > MaxNumber {
			return wrapError(ErrInvalidDrawRecord, nil, fmt.Sprintf("draw %d: number %d out of range", r.DrawNo, n))
		}
		if seen[n] {
			return wrapError(ErrInvalidDrawRecord, nil, fmt.Sprintf("draw %d: number %d repeated", r.DrawNo, n))
		}
		seen[n] = true
	}

	if r.AdditionalNumber < MinNumber || r.AdditionalNumber > MaxNumber {
		return wrapError(ErrInvalidDrawRecord, nil,
			fmt.Sprintf("draw %d: additional number %d out of range", r.DrawNo, r.AdditionalNumber))
	}
	if seen[r.AdditionalNumber] {
		return wrapError(ErrInvalidDrawRecord, nil,
			fmt.Sprintf("draw %d: additional number %d repeats a winning number", r.DrawNo, r.AdditionalNumber))
	}
	for t := range r.PrizeTable {
		if !t.Valid() {
			return wrapError(ErrInvalidDrawRecord, nil, fmt.Sprintf("draw %d: unknown prize tier %d", r.DrawNo, t))
		}
	}
	return nil
}

// NormalizedDate 返回规范化的开奖日期
func (r *DrawRecord) NormalizedDate() string { return NormalizeDate(r.DrawDate) }

// Clone 深拷贝, 存储层返回副本以保证记录不可变
func (r *DrawRecord) Clone() *DrawRecord {
	cp := *r
	cp.WinningNumbers = slices.Clone(r.WinningNumbers)
	if r.PrizeTable != nil {
		cp.PrizeTable = make(PrizeTable, len(r.PrizeTable))
		for k, v := range r.PrizeTable {
			cp.PrizeTable[k] = v
		}
	}
	return &cp
}

// AppendReport 追加结果
type AppendReport struct {
	Added   []int `json:"added"`
	Skipped []int `json:"skipped,omitempty"`
}

// joinNumbers 以逗号拼接号码, 用于扁平存储
func joinNumbers(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// splitNumbers 解析逗号拼接的号码
func splitNumbers(s string) ([]int, error) {
	fields := strings.Split(s, ",")
	nums := make([]int, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", f, err)
		}
		nums = append(nums, n)
	}
	return nums, nil
}

// prepareAppend 校验一批记录并剔除重复期号; existing 报告某期号是否已入库
func prepareAppend(records []DrawRecord, existing func(int) bool, logger Logger) ([]DrawRecord, *AppendReport, error) {
	report := &AppendReport{}
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return nil, nil, err
		}
	}

	accepted := make([]DrawRecord, 0, len(records))
	inBatch := make(map[int]bool, len(records))
	for _, rec := range records {
		if existing(rec.DrawNo) || inBatch[rec.DrawNo] {
			logger.Warn("Skipping draw %d: already stored", rec.DrawNo)
			report.Skipped = append(report.Skipped, rec.DrawNo)
			continue
		}
		inBatch[rec.DrawNo] = true
		accepted = append(accepted, *rec.Clone())
		report.Added = append(report.Added, rec.DrawNo)
	}
	return accepted, report, nil
}

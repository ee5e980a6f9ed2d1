package lottery

import (
	"fmt"
	"slices"
)

// Ticket 用户的一组号码, 超过 6 个号码为复式
type Ticket struct {
	Numbers    []int  `json:"numbers"`
	SourceDate string `json:"source_date,omitempty"`
}

// NewTicket 创建并校验彩票号码
func NewTicket(numbers []int, sourceDate string) (*Ticket, error) {
	if err := ValidateNumbers(numbers); err != nil {
		return nil, err
	}
	return &Ticket{Numbers: slices.Clone(numbers), SourceDate: sourceDate}, nil
}

// Validate 校验彩票号码
func (t *Ticket) Validate() error {
	if t == nil {
		return malformed("no numbers given")
	}
	return ValidateNumbers(t.Numbers)
}

// IsSystemEntry 是否为复式投注
func (t *Ticket) IsSystemEntry() bool { return len(t.Numbers) > NumbersPerDraw }

// Classification 对奖结果
type Classification struct {
	MatchCount int    `json:"match_count"`
	BonusHit   bool   `json:"bonus_hit"`
	Tier       Tier   `json:"tier"`
	PrizeText  string `json:"prize_text"`
	Matched    []int  `json:"matched"`
}

// Won 是否中奖
func (c *Classification) Won() bool { return c.Tier != TierNone }

func (c *Classification) String() string {
	return fmt.Sprintf("%d matched, bonus=%t, %s: %s", c.MatchCount, c.BonusHit, c.Tier.Label(), c.PrizeText)
}

// ClassifyCounts 按官方规则把命中数和特别号命中映射到奖级
func ClassifyCounts(matchCount int, bonusHit bool) Tier {
	switch {
	case matchCount >= 6:
		return Tier1
	case matchCount == 5 && bonusHit:
		return Tier2
	case matchCount == 5:
		return Tier3
	case matchCount == 4 && bonusHit:
		return Tier4
	case matchCount == 4:
		return Tier5
	case matchCount == 3 && bonusHit:
		return Tier6
	case matchCount == 3:
		return Tier7
	default:
		return TierNone
	}
}

// Classify 对比一张彩票和一期开奖结果; 复式票只与固定的 6 个中奖号码求交集
func Classify(ticket *Ticket, draw *DrawRecord) (*Classification, error) {
	if err := ticket.Validate(); err != nil {
		return nil, err
	}
	if draw == nil {
		return nil, ErrInvalidParameters
	}

	picked := make(map[int]bool, len(ticket.Numbers))
	for _, n := range ticket.Numbers {
		picked[n] = true
	}

	matched := make([]int, 0, NumbersPerDraw)
	for _, n := range draw.WinningNumbers {
		if picked[n] {
			matched = append(matched, n)
		}
	}
	slices.Sort(matched)

	result := &Classification{
		MatchCount: len(matched),
		BonusHit:   picked[draw.AdditionalNumber],
		Matched:    matched,
	}
	result.Tier = ClassifyCounts(result.MatchCount, result.BonusHit)
	result.PrizeText = draw.PrizeTable.Get(result.Tier)
	return result, nil
}

package lottery

import (
	"context"
	"strings"
)

// RowResult is the classification of one ticket row
type RowResult struct {
	Numbers        []int           `json:"numbers"`
	Classification *Classification `json:"classification,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// CheckResult pairs the selected draw with every row's result
type CheckResult struct {
	RequestedDate string      `json:"requested_date,omitempty"`
	Draw          *DrawRecord `json:"draw"`
	Rows          []RowResult `json:"rows"`
}

// BestTier returns the best tier won across rows
func (r *CheckResult) BestTier() Tier {
	best := TierNone
	for _, row := range r.Rows {
		if row.Classification == nil || !row.Classification.Won() {
			continue
		}
		if best == TierNone || row.Classification.Tier < best {
			best = row.Classification.Tier
		}
	}
	return best
}

// Checker selects the draw for a ticket and classifies its rows
type Checker struct {
	store  DrawStore
	logger Logger
}

// NewChecker creates a checker reading from store
func NewChecker(store DrawStore, logger Logger) *Checker {
	if logger == nil {
		logger = NewSilentLogger()
	}
	return &Checker{store: store, logger: logger}
}

// SelectDraw returns the draw for date, or the latest draw when date is blank
func (c *Checker) SelectDraw(ctx context.Context, date string) (*DrawRecord, error) {
	if strings.TrimSpace(date) == "" {
		return c.store.Latest(ctx)
	}
	return c.store.FindByDate(ctx, strings.TrimSpace(date))
}

// Check classifies every row against one draw; a malformed row is reported on its own
// and does not fail the others
func (c *Checker) Check(ctx context.Context, date string, rows [][]int) (*CheckResult, error) {
	if len(rows) == 0 {
		return nil, malformed("no ticket numbers were found")
	}

	draw, err := c.SelectDraw(ctx, date)
	if err != nil {
		c.logger.Debug("No draw for %q: %v", date, err)
		return nil, err
	}

	result := &CheckResult{RequestedDate: date, Draw: draw, Rows: make([]RowResult, 0, len(rows))}
	for _, nums := range rows {
		row := RowResult{Numbers: nums}

		ticket, err := NewTicket(nums, date)
		if err == nil {
			row.Classification, err = Classify(ticket, draw)
		}
		if err != nil {
			row.Error = UserMessage(err)
		}
		result.Rows = append(result.Rows, row)
	}

	c.logger.Debug("Checked %d rows against draw %d", len(rows), draw.DrawNo)
	return result, nil
}

// CheckTicket classifies a single ticket using its own source date
func (c *Checker) CheckTicket(ctx context.Context, ticket *Ticket) (*DrawRecord, *Classification, error) {
	if err := ticket.Validate(); err != nil {
		return nil, nil, err
	}

	draw, err := c.SelectDraw(ctx, ticket.SourceDate)
	if err != nil {
		return nil, nil, err
	}

	result, err := Classify(ticket, draw)
	if err != nil {
		return nil, nil, err
	}
	return draw, result, nil
}

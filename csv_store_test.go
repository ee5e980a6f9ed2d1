package lottery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCSVStore(t *testing.T) *CSVStore {
	t.Helper()
	cfg := DefaultStoreConfig()
	cfg.CSVPath = filepath.Join(t.TempDir(), "toto_history.csv")
	return NewCSVStore(cfg, NewSilentLogger())
}

func record(no int, date string, nums ...int) DrawRecord {
	return DrawRecord{
		DrawNo:           no,
		DrawDate:         date,
		WinningNumbers:   nums[:6],
		AdditionalNumber: nums[6],
	}
}

func TestCSVStore_Empty(t *testing.T) {
	store := newTestCSVStore(t)
	ctx := context.Background()

	_, err := store.Latest(ctx)
	assert.ErrorIs(t, err, ErrStoreEmpty)

	maxNo, err := store.MaxDrawNo(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryFloor, maxNo)

	_, err = store.FindByDate(ctx, "23/02/26")
	assert.ErrorIs(t, err, ErrDrawNotFound)

	report, err := store.Append(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Added)
	_, err = os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err), "empty batch does not create the file")
}

func TestCSVStore_RoundTrip(t *testing.T) {
	store := newTestCSVStore(t)
	ctx := context.Background()

	withPrizes := *testDraw()
	partial := record(4058, "26/02/26", 1, 2, 3, 4, 5, 6, 7)
	partial.PrizeTable = PrizeTable{Tier1: "$1,000,000", Tier3: "$1,500"}
	bare := record(4059, "Mon, 2 Mar 2026", 8, 9, 10, 11, 12, 13, 14)

	report, err := store.Append(ctx, []DrawRecord{withPrizes, partial, bare})
	require.NoError(t, err)
	assert.Equal(t, []int{4057, 4058, 4059}, report.Added)

	for _, want := range []DrawRecord{withPrizes, partial, bare} {
		got, err := store.FindByDate(ctx, NormalizeDate(want.DrawDate))
		require.NoError(t, err)
		assert.Equal(t, want, *got)

		got, err = store.FindByDrawNo(ctx, want.DrawNo)
		require.NoError(t, err)
		assert.Equal(t, want, *got)
	}

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4059, latest.DrawNo)

	maxNo, err := store.MaxDrawNo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4059, maxNo)
}

func TestCSVStore_FindByDateAcceptsEitherForm(t *testing.T) {
	store := newTestCSVStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, []DrawRecord{*testDraw()})
	require.NoError(t, err)

	for _, date := range []string{"23/02/26", "Mon, 23 Feb 2026", "2026-02-23"} {
		got, err := store.FindByDate(ctx, date)
		require.NoError(t, err, date)
		assert.Equal(t, 4057, got.DrawNo)
	}
}

func TestCSVStore_FindByDateReturnsLastAppended(t *testing.T) {
	store := newTestCSVStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, []DrawRecord{record(4056, "23/02/26", 1, 2, 3, 4, 5, 6, 7)})
	require.NoError(t, err)
	_, err = store.Append(ctx, []DrawRecord{record(4057, "Mon, 23 Feb 2026", 8, 9, 10, 11, 12, 13, 14)})
	require.NoError(t, err)

	got, err := store.FindByDate(ctx, "23/02/26")
	require.NoError(t, err)
	assert.Equal(t, 4057, got.DrawNo)
}

func TestCSVStore_Append(t *testing.T) {
	tests := []struct {
		name        string
		existing    []DrawRecord
		batch       []DrawRecord
		wantAdded   []int
		wantSkipped []int
		wantErr     error
		wantStored  []int
	}{
		{
			name:       "appends after existing",
			existing:   []DrawRecord{record(4054, "12/02/26", 1, 2, 3, 4, 5, 6, 7)},
			batch:      []DrawRecord{record(4055, "16/02/26", 1, 2, 3, 4, 5, 6, 7)},
			wantAdded:  []int{4055},
			wantStored: []int{4054, 4055},
		},
		{
			name:        "stored draw number is skipped",
			existing:    []DrawRecord{record(4054, "12/02/26", 1, 2, 3, 4, 5, 6, 7)},
			batch:       []DrawRecord{record(4054, "12/02/26", 8, 9, 10, 11, 12, 13, 14), record(4055, "16/02/26", 1, 2, 3, 4, 5, 6, 7)},
			wantAdded:   []int{4055},
			wantSkipped: []int{4054},
			wantStored:  []int{4054, 4055},
		},
		{
			name:        "duplicate inside the batch is skipped",
			batch:       []DrawRecord{record(4055, "16/02/26", 1, 2, 3, 4, 5, 6, 7), record(4055, "16/02/26", 1, 2, 3, 4, 5, 6, 7)},
			wantAdded:   []int{4055},
			wantSkipped: []int{4055},
			wantStored:  []int{4055},
		},
		{
			name:       "invalid record fails the whole batch",
			existing:   []DrawRecord{record(4054, "12/02/26", 1, 2, 3, 4, 5, 6, 7)},
			batch:      []DrawRecord{record(4055, "16/02/26", 1, 2, 3, 4, 5, 6, 7), record(4056, "19/02/26", 1, 1, 3, 4, 5, 6, 7)},
			wantErr:    ErrInvalidDrawRecord,
			wantStored: []int{4054},
		},
		{
			name:       "additional number repeating a winning number",
			batch:      []DrawRecord{record(4055, "16/02/26", 1, 2, 3, 4, 5, 6, 6)},
			wantErr:    ErrInvalidDrawRecord,
			wantStored: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestCSVStore(t)
			ctx := context.Background()

			if len(tt.existing) > 0 {
				_, err := store.Append(ctx, tt.existing)
				require.NoError(t, err)
			}

			report, err := store.Append(ctx, tt.batch)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantAdded, report.Added)
				assert.Equal(t, tt.wantSkipped, report.Skipped)
			}

			records, err := store.load()
			require.NoError(t, err)
			var stored []int
			for _, r := range records {
				stored = append(stored, r.DrawNo)
			}
			assert.Equal(t, tt.wantStored, stored)
		})
	}
}

func TestCSVStore_RecordsAreCopies(t *testing.T) {
	store := newTestCSVStore(t)
	ctx := context.Background()

	batch := []DrawRecord{*testDraw()}
	_, err := store.Append(ctx, batch)
	require.NoError(t, err)

	batch[0].WinningNumbers[0] = 1
	got, err := store.FindByDrawNo(ctx, 4057)
	require.NoError(t, err)
	assert.Equal(t, 3, got.WinningNumbers[0])
}

func TestCSVStore_PersistenceError(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.CSVPath = filepath.Join(t.TempDir(), "missing", "toto_history.csv")
	store := NewCSVStore(cfg, nil)

	_, err := store.Append(context.Background(), []DrawRecord{*testDraw()})
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestCSVStore_WritesFlatLayout(t *testing.T) {
	store := newTestCSVStore(t)
	rec := record(4058, "Thu, 26 Feb 2026", 1, 2, 3, 4, 5, 6, 7)
	rec.PrizeTable = PrizeTable{Tier1: "$1,000,000"}

	_, err := store.Append(context.Background(), []DrawRecord{rec})
	require.NoError(t, err)

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "draw_no,date,win_nums,additional,g1_prize,g2_prize,g3_prize,g4_prize,g5_prize,g6_prize,g7_prize", lines[0])
	assert.Equal(t, `4058,"Thu, 26 Feb 2026","1,2,3,4,5,6",7,"$1,000,000",-,-,-,-,-,-`, lines[1])
}

func TestReadCSV_LegacyColumns(t *testing.T) {
	data := "draw_no,date,win_nums,additional\n" +
		"4050,\"Mon, 2 Feb 2026\",\"4,8,15,16,23,42\",9\n" +
		"4051,05/02/26,\"1,2,3,4,5,6\",7\n"

	records, err := readCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []int{4, 8, 15, 16, 23, 42}, records[0].WinningNumbers)
	assert.Nil(t, records[0].PrizeTable)
	assert.Equal(t, PrizeUnavailable, records[0].PrizeTable.Get(Tier1))
	assert.Equal(t, "05/02/26", records[1].NormalizedDate())
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "missing column", data: "draw_no,date,additional\n1,01/01/26,7\n"},
		{name: "bad draw number", data: "draw_no,date,win_nums,additional\nabc,01/01/26,\"1,2,3,4,5,6\",7\n"},
		{name: "bad winning number", data: "draw_no,date,win_nums,additional\n1,01/01/26,\"1,x,3,4,5,6\",7\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readCSV(strings.NewReader(tt.data))
			assert.ErrorIs(t, err, ErrPersistence)
		})
	}
}

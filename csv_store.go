package lottery

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

var csvHeader = []string{
	"draw_no", "date", "win_nums", "additional",
	"g1_prize", "g2_prize", "g3_prize", "g4_prize", "g5_prize", "g6_prize", "g7_prize",
}

// CSVStore keeps the draw history in a flat CSV file
type CSVStore struct {
	path         string
	historyFloor int
	logger       Logger

	mu sync.Mutex
}

// NewCSVStore creates a CSV-backed store; the file is created on first append
func NewCSVStore(cfg *StoreConfig, logger Logger) *CSVStore {
	if cfg == nil {
		cfg = DefaultStoreConfig()
	}
	if logger == nil {
		logger = NewSilentLogger()
	}
	return &CSVStore{
		path:         cfg.CSVPath,
		historyFloor: cfg.HistoryFloor,
		logger:       logger,
	}
}

// Path returns the backing file
func (s *CSVStore) Path() string { return s.path }

// Latest returns the record with the highest draw number
func (s *CSVStore) Latest(ctx context.Context) (*DrawRecord, error) {
	records, err := s.load()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrStoreEmpty
	}

	latest := &records[0]
	for i := range records[1:] {
		if records[i+1].DrawNo > latest.DrawNo {
			latest = &records[i+1]
		}
	}
	return latest, nil
}

// MaxDrawNo returns the highest stored draw number, or the history floor
func (s *CSVStore) MaxDrawNo(ctx context.Context) (int, error) {
	records, err := s.load()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return s.historyFloor, nil
	}

	maxNo := records[0].DrawNo
	for _, rec := range records[1:] {
		maxNo = max(maxNo, rec.DrawNo)
	}
	return maxNo, nil
}

// FindByDate returns the last record in file order whose normalized date matches
func (s *CSVStore) FindByDate(ctx context.Context, date string) (*DrawRecord, error) {
	records, err := s.load()
	if err != nil {
		return nil, err
	}

	want := NormalizeDate(date)
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].NormalizedDate() == want {
			return &records[i], nil
		}
	}
	return nil, wrapError(ErrDrawNotFound, nil, date)
}

// FindByDrawNo returns the record with the given draw number
func (s *CSVStore) FindByDrawNo(ctx context.Context, drawNo int) (*DrawRecord, error) {
	records, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].DrawNo == drawNo {
			return &records[i], nil
		}
	}
	return nil, wrapError(ErrDrawNotFound, nil, fmt.Sprintf("draw %d", drawNo))
}

// Append writes new records after the existing ones; the file is replaced atomically
func (s *CSVStore) Append(ctx context.Context, records []DrawRecord) (*AppendReport, error) {
	if len(records) == 0 {
		return &AppendReport{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return nil, err
	}
	stored := make(map[int]bool, len(existing))
	for _, rec := range existing {
		stored[rec.DrawNo] = true
	}

	accepted, report, err := prepareAppend(records, func(n int) bool { return stored[n] }, s.logger)
	if err != nil {
		return nil, err
	}
	if len(accepted) == 0 {
		return report, nil
	}

	if err := s.write(append(existing, accepted...)); err != nil {
		return nil, err
	}

	s.logger.Info("Appended %d draws to %s", len(accepted), s.path)
	return report, nil
}

// load reads the whole file; a missing file is an empty store
func (s *CSVStore) load() ([]DrawRecord, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError(ErrPersistence, err, "open "+s.path)
	}
	defer f.Close()

	return readCSV(f)
}

// write replaces the file through a temp file in the same directory
func (s *CSVStore) write(records []DrawRecord) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return wrapError(ErrPersistence, err, "create temp file in "+dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := writeCSV(tmp, records); err != nil {
		tmp.Close()
		return wrapError(ErrPersistence, err, "write "+tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return wrapError(ErrPersistence, err, "sync "+tmpName)
	}
	if err := tmp.Close(); err != nil {
		return wrapError(ErrPersistence, err, "close "+tmpName)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return wrapError(ErrPersistence, err, "replace "+s.path)
	}
	return nil
}

func readCSV(r io.Reader) ([]DrawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError(ErrPersistence, err, "read header")
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, required := range csvHeader[:4] {
		if _, ok := cols[required]; !ok {
			return nil, wrapError(ErrPersistence, nil, "missing column "+required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []DrawRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapError(ErrPersistence, err, fmt.Sprintf("read line %d", line))
		}

		rec, err := parseCSVRow(row, field)
		if err != nil {
			return nil, wrapError(ErrPersistence, err, fmt.Sprintf("line %d", line))
		}
		records = append(records, *rec)
	}
	return records, nil
}

func parseCSVRow(row []string, field func([]string, string) string) (*DrawRecord, error) {
	drawNo, err := strconv.Atoi(field(row, "draw_no"))
	if err != nil {
		return nil, fmt.Errorf("invalid draw_no: %w", err)
	}
	nums, err := splitNumbers(field(row, "win_nums"))
	if err != nil {
		return nil, err
	}
	additional, err := strconv.Atoi(field(row, "additional"))
	if err != nil {
		return nil, fmt.Errorf("invalid additional: %w", err)
	}

	rec := &DrawRecord{
		DrawNo:           drawNo,
		DrawDate:         field(row, "date"),
		WinningNumbers:   nums,
		AdditionalNumber: additional,
	}
	for _, t := range Tiers {
		v := field(row, fmt.Sprintf("g%d_prize", t))
		if v == "" || v == PrizeUnavailable {
			continue
		}
		if rec.PrizeTable == nil {
			rec.PrizeTable = PrizeTable{}
		}
		rec.PrizeTable[t] = v
	}
	return rec, nil
}

func writeCSV(w io.Writer, records []DrawRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	row := make([]string, len(csvHeader))
	for _, rec := range records {
		row[0] = strconv.Itoa(rec.DrawNo)
		row[1] = rec.DrawDate
		row[2] = joinNumbers(rec.WinningNumbers)
		row[3] = strconv.Itoa(rec.AdditionalNumber)
		for i, t := range Tiers {
			row[4+i] = rec.PrizeTable.Get(t)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

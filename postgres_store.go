package lottery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// drawRow is the flat table layout, mirroring the CSV columns
type drawRow struct {
	bun.BaseModel `bun:"table:draws,alias:d"`

	DrawNo     int       `bun:"draw_no,pk"`
	Date       string    `bun:"date,notnull"`
	NormDate   string    `bun:"norm_date,notnull"`
	WinNums    string    `bun:"win_nums,notnull"`
	Additional int       `bun:"additional,notnull"`
	G1Prize    string    `bun:"g1_prize,notnull,default:'-'"`
	G2Prize    string    `bun:"g2_prize,notnull,default:'-'"`
	G3Prize    string    `bun:"g3_prize,notnull,default:'-'"`
	G4Prize    string    `bun:"g4_prize,notnull,default:'-'"`
	G5Prize    string    `bun:"g5_prize,notnull,default:'-'"`
	G6Prize    string    `bun:"g6_prize,notnull,default:'-'"`
	G7Prize    string    `bun:"g7_prize,notnull,default:'-'"`
	AppendedAt time.Time `bun:"appended_at,nullzero,notnull,default:current_timestamp"`
}

func (r *drawRow) prizes() []*string {
	return []*string{&r.G1Prize, &r.G2Prize, &r.G3Prize, &r.G4Prize, &r.G5Prize, &r.G6Prize, &r.G7Prize}
}

func rowFromRecord(rec *DrawRecord) *drawRow {
	row := &drawRow{
		DrawNo:     rec.DrawNo,
		Date:       rec.DrawDate,
		NormDate:   rec.NormalizedDate(),
		WinNums:    joinNumbers(rec.WinningNumbers),
		Additional: rec.AdditionalNumber,
	}
	for i, p := range row.prizes() {
		*p = rec.PrizeTable.Get(Tiers[i])
	}
	return row
}

func (r *drawRow) record() (*DrawRecord, error) {
	nums, err := splitNumbers(r.WinNums)
	if err != nil {
		return nil, fmt.Errorf("draw %d: %w", r.DrawNo, err)
	}
	rec := &DrawRecord{
		DrawNo:           r.DrawNo,
		DrawDate:         r.Date,
		WinningNumbers:   nums,
		AdditionalNumber: r.Additional,
	}
	for i, p := range r.prizes() {
		if *p == "" || *p == PrizeUnavailable {
			continue
		}
		if rec.PrizeTable == nil {
			rec.PrizeTable = PrizeTable{}
		}
		rec.PrizeTable[Tiers[i]] = *p
	}
	return rec, nil
}

// PostgresStore keeps the draw history in a Postgres table through bun
type PostgresStore struct {
	db           *bun.DB
	historyFloor int
	logger       Logger
}

// OpenPostgresStore connects, pings and creates the schema
func OpenPostgresStore(ctx context.Context, cfg *StoreConfig, logger Logger) (*PostgresStore, error) {
	if cfg == nil || cfg.PostgresDSN == "" {
		return nil, wrapError(ErrConfigInvalid, nil, "store.postgres_dsn is required for the postgres backend")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.PostgresDSN)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, wrapError(ErrPersistence, err, "connect to postgres")
	}

	store := NewPostgresStore(db, cfg.HistoryFloor, logger)
	if err := store.CreateSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an open bun database
func NewPostgresStore(db *bun.DB, historyFloor int, logger Logger) *PostgresStore {
	if logger == nil {
		logger = NewSilentLogger()
	}
	return &PostgresStore{db: db, historyFloor: historyFloor, logger: logger}
}

// CreateSchema creates the draws table and its date index
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*drawRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return wrapError(ErrPersistence, err, "create table draws")
	}
	_, err := s.db.NewCreateIndex().
		Model((*drawRow)(nil)).
		Index("draws_norm_date_idx").
		IfNotExists().
		Column("norm_date").
		Exec(ctx)
	if err != nil {
		return wrapError(ErrPersistence, err, "create index draws_norm_date_idx")
	}
	return nil
}

// Close closes the database handle
func (s *PostgresStore) Close() error { return s.db.Close() }

// Latest returns the record with the highest draw number
func (s *PostgresStore) Latest(ctx context.Context) (*DrawRecord, error) {
	row := new(drawRow)
	err := s.db.NewSelect().Model(row).OrderExpr("draw_no DESC").Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStoreEmpty
	}
	if err != nil {
		return nil, wrapError(ErrPersistence, err, "select latest draw")
	}
	return row.record()
}

// MaxDrawNo returns the highest stored draw number, or the history floor
func (s *PostgresStore) MaxDrawNo(ctx context.Context) (int, error) {
	var maxNo sql.NullInt64
	err := s.db.NewSelect().Model((*drawRow)(nil)).ColumnExpr("MAX(draw_no)").Scan(ctx, &maxNo)
	if err != nil {
		return 0, wrapError(ErrPersistence, err, "select max draw_no")
	}
	if !maxNo.Valid {
		return s.historyFloor, nil
	}
	return int(maxNo.Int64), nil
}

// FindByDate returns the most recently appended record for the normalized date
func (s *PostgresStore) FindByDate(ctx context.Context, date string) (*DrawRecord, error) {
	row := new(drawRow)
	err := s.db.NewSelect().
		Model(row).
		Where("norm_date = ?", NormalizeDate(date)).
		OrderExpr("appended_at DESC, draw_no DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrapError(ErrDrawNotFound, nil, date)
	}
	if err != nil {
		return nil, wrapError(ErrPersistence, err, "select draw by date")
	}
	return row.record()
}

// FindByDrawNo returns the record with the given draw number
func (s *PostgresStore) FindByDrawNo(ctx context.Context, drawNo int) (*DrawRecord, error) {
	row := new(drawRow)
	err := s.db.NewSelect().Model(row).Where("draw_no = ?", drawNo).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrapError(ErrDrawNotFound, nil, fmt.Sprintf("draw %d", drawNo))
	}
	if err != nil {
		return nil, wrapError(ErrPersistence, err, "select draw by number")
	}
	return row.record()
}

// Append inserts new records in one transaction; stored draw numbers are skipped
func (s *PostgresStore) Append(ctx context.Context, records []DrawRecord) (*AppendReport, error) {
	if len(records) == 0 {
		return &AppendReport{}, nil
	}

	var report *AppendReport
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		nos := make([]int, len(records))
		for i := range records {
			nos[i] = records[i].DrawNo
		}

		var existing []int
		err := tx.NewSelect().
			Model((*drawRow)(nil)).
			Column("draw_no").
			Where("draw_no IN (?)", bun.In(nos)).
			Scan(ctx, &existing)
		if err != nil {
			return wrapError(ErrPersistence, err, "select existing draws")
		}
		stored := make(map[int]bool, len(existing))
		for _, n := range existing {
			stored[n] = true
		}

		accepted, r, err := prepareAppend(records, func(n int) bool { return stored[n] }, s.logger)
		if err != nil {
			return err
		}
		report = r
		if len(accepted) == 0 {
			return nil
		}

		rows := make([]*drawRow, len(accepted))
		for i := range accepted {
			rows[i] = rowFromRecord(&accepted[i])
		}
		if _, err := tx.NewInsert().Model(&rows).On("CONFLICT (draw_no) DO NOTHING").Exec(ctx); err != nil {
			return wrapError(ErrPersistence, err, "insert draws")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(report.Added) > 0 {
		s.logger.Info("Appended %d draws to postgres", len(report.Added))
	}
	return report, nil
}

// OpenStore opens the backend named in cfg.Backend
func OpenStore(ctx context.Context, cfg *StoreConfig, logger Logger) (DrawStore, func() error, error) {
	if cfg == nil {
		cfg = DefaultStoreConfig()
	}

	switch cfg.Backend {
	case StoreBackendCSV, "":
		return NewCSVStore(cfg, logger), func() error { return nil }, nil
	case StoreBackendPostgres:
		store, err := OpenPostgresStore(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, wrapError(ErrConfigInvalid, nil, "unknown store backend "+cfg.Backend)
	}
}

package store

import (
	"context"
	"time"

	"pricefeed/internal/schema"
	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
)

const defaultDBBatchSize = 500

// RunRow is one finished run.
type RunRow struct {
	RunID       string `gorm:"column:run_id;primaryKey;size:36"`
	Records     int    `gorm:"column:records"`
	Missing     int    `gorm:"column:missing"`
	CompletedAt time.Time
}

func (RunRow) TableName() string {
	return "feed_runs"
}

// RecordRow is one stored record. Duplicates of a sequence are kept as
// separate rows, in sorted order via Position.
type RecordRow struct {
	ID       uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	RunID    string `gorm:"column:run_id;size:36;index:idx_feed_records_run_seq,priority:1"`
	Sequence int32  `gorm:"column:sequence;index:idx_feed_records_run_seq,priority:2"`
	Position int    `gorm:"column:position"`
	Symbol   string `gorm:"column:symbol;size:4"`
	Side     string `gorm:"column:side;size:1"`
	Quantity int32  `gorm:"column:quantity"`
	Price    int32  `gorm:"column:price"`
}

func (RecordRow) TableName() string {
	return "feed_records"
}

func newRecordRow(runID string, position int, rec schema.Record) RecordRow {
	return RecordRow{
		RunID:    runID,
		Sequence: int32(rec.Sequence),
		Position: position,
		Symbol:   rec.Symbol,
		Side:     string(rune(rec.Side)),
		Quantity: int32(rec.Quantity),
		Price:    int32(rec.Price),
	}
}

func (r RecordRow) Record() schema.Record {
	var side schema.Side
	if len(r.Side) == 1 {
		side = schema.Side(r.Side[0])
	}
	return schema.Record{
		Symbol:   r.Symbol,
		Side:     side,
		Quantity: schema.Quantity(r.Quantity),
		Price:    schema.Price(r.Price),
		Sequence: schema.Sequence(r.Sequence),
	}
}

// DB stores runs through gorm.
type DB struct {
	db        *gorm.DB
	batchSize int
}

// NewDB migrates the tables and returns the sink. batchSize <= 0 uses the default.
func NewDB(db *gorm.DB, batchSize int) (*DB, error) {
	if db == nil {
		return nil, exception.ErrNilInstance
	}
	if batchSize <= 0 {
		batchSize = defaultDBBatchSize
	}
	if err := db.AutoMigrate(&RunRow{}, &RecordRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate feed tables")
	}
	return &DB{db: db, batchSize: batchSize}, nil
}

func (d *DB) Name() string {
	return "db"
}

func (d *DB) Write(ctx context.Context, batch Batch) error {
	rows := make([]RecordRow, 0, len(batch.Records))
	for i, rec := range batch.Records {
		rows = append(rows, newRecordRow(batch.RunID, i, rec))
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run := RunRow{
			RunID:       batch.RunID,
			Records:     len(batch.Records),
			Missing:     len(batch.Missing),
			CompletedAt: batch.CompletedAt,
		}
		if err := tx.Create(&run).Error; err != nil {
			return errors.Wrap(err, "insert run").With("run", batch.RunID)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, d.batchSize).Error; err != nil {
			return errors.Wrap(err, "insert records").With("run", batch.RunID)
		}
		return nil
	})
}

// Records loads the records of one run in stored order.
func (d *DB) Records(ctx context.Context, runID string) ([]schema.Record, error) {
	var rows []RecordRow
	if err := d.db.WithContext(ctx).Where("run_id = ?", runID).Order("position").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "query records").With("run", runID)
	}
	records := make([]schema.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.Record())
	}
	return records, nil
}

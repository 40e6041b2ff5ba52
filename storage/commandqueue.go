package storage

import (
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/lumenquant/coreengine/service"
)

// commandRecord is the GORM-mapped row backing a queued command.
type commandRecord struct {
	ID        int64 `gorm:"primaryKey,autoIncrement"`
	Payload   string
	Acked     bool
	Success   bool
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SQLCommandQueue is a GORM-backed service.CommandQueue, so commands
// submitted through an external API survive a process restart (spec §6's
// command-queue-handler configuration name, given a concrete store).
// Grounded on the teacher's storage/sql.go dialect-agnostic FromSQL wiring.
type SQLCommandQueue struct {
	db *gorm.DB
}

// NewSQLCommandQueue opens dialect (e.g. glebarez/sqlite.Open(path)) and
// migrates the command table.
func NewSQLCommandQueue(dialect gorm.Dialector, opts ...gorm.Option) (*SQLCommandQueue, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&commandRecord{}); err != nil {
		return nil, err
	}
	return &SQLCommandQueue{db: db}, nil
}

// Submit inserts a new, unacked command, returning its assigned ID.
func (q *SQLCommandQueue) Submit(payload string) (int64, error) {
	rec := commandRecord{Payload: payload}
	if err := q.db.Create(&rec).Error; err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// Dequeue returns every unacked command in submission order.
func (q *SQLCommandQueue) Dequeue() ([]service.Command, error) {
	var records []commandRecord
	result := q.db.Where("acked = ?", false).Order("created_at").Find(&records)
	if result.Error != nil && result.Error != gorm.ErrRecordNotFound {
		return nil, result.Error
	}
	return lo.Map(records, func(r commandRecord, _ int) service.Command {
		return service.Command{ID: r.ID, Payload: r.Payload}
	}), nil
}

// Ack records the outcome of running command id and marks it acked so a
// future Dequeue skips it.
func (q *SQLCommandQueue) Ack(id int64, success bool, message string) error {
	return q.db.Model(&commandRecord{}).Where("id = ?", id).Updates(map[string]any{
		"acked":   true,
		"success": success,
		"message": message,
	}).Error
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/taskmesh/taskmesh/types"
)

// DBConfig configures the SQLite backing.
type DBConfig struct {
	// Path is the database file; ":memory:" keeps it in process memory.
	Path string `yaml:"path" json:"path"`
	// MaxOpenConns bounds the connection pool.
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns"`
	// MaxIdleConns bounds idle pooled connections.
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns"`
	// ConnMaxLifetime recycles long-lived connections.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// DefaultDBConfig returns the default SQLite settings.
func DefaultDBConfig() DBConfig {
	return DBConfig{
		Path:            "taskmesh.db",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

// DB wraps the GORM handle shared by the SQL-backed stores.
type DB struct {
	db     *gorm.DB
	logger *zap.Logger
}

// taskRow is the persisted form of a task execution record. The full record
// travels as a JSON payload; status and progress are lifted into columns so
// status queries never deserialize the payload.
type taskRow struct {
	TaskID    string `gorm:"primaryKey;column:task_id"`
	Status    string `gorm:"index"`
	Progress  int
	Payload   []byte
	UpdatedAt time.Time
}

func (taskRow) TableName() string { return "tasks" }

// auditRow is one persisted audit record. Seq preserves append order per
// task; the indexed columns mirror the queryable AuditQuery fields.
type auditRow struct {
	Seq       uint64 `gorm:"primaryKey;autoIncrement"`
	RecordID  string `gorm:"column:record_id"`
	TaskID    string `gorm:"index;column:task_id"`
	AgentID   string `gorm:"index;column:agent_id"`
	Kind      string `gorm:"index"`
	Timestamp time.Time `gorm:"index"`
	Payload   []byte
}

func (auditRow) TableName() string { return "audit_records" }

// Open opens (creating if needed) the SQLite database and migrates the
// schema.
func Open(cfg DBConfig, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultDBConfig().Path
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&taskRow{}, &auditRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger = logger.With(zap.String("component", "store"))
	logger.Info("database opened",
		zap.String("path", cfg.Path),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)
	return &DB{db: db, logger: logger}, nil
}

// Tasks returns the task store backed by this database.
func (d *DB) Tasks() *SQLTaskStore {
	return &SQLTaskStore{db: d.db}
}

// Audit returns the audit store backed by this database.
func (d *DB) Audit() *SQLAuditStore {
	return &SQLAuditStore{db: d.db}
}

// Ping checks the underlying connection.
func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	d.logger.Info("closing database")
	return sqlDB.Close()
}

// SQLTaskStore persists task records to the tasks table.
type SQLTaskStore struct {
	db *gorm.DB
}

// Save upserts the record keyed by task id.
func (s *SQLTaskStore) Save(ctx context.Context, rec *types.TaskExecutionRecord) error {
	if rec == nil || rec.TaskID == "" {
		return types.NewError(types.ErrInvalidInput, "record has no task id")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal task record: %w", err)
	}
	row := taskRow{
		TaskID:    rec.TaskID,
		Status:    string(rec.Status),
		Progress:  rec.Progress,
		Payload:   payload,
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

// Load returns the stored record or TASK_NOT_FOUND.
func (s *SQLTaskStore) Load(ctx context.Context, taskID string) (*types.TaskExecutionRecord, error) {
	var row taskRow
	err := s.db.WithContext(ctx).First(&row, "task_id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrTaskNotFound, "task not found: "+taskID)
	}
	if err != nil {
		return nil, err
	}
	var rec types.TaskExecutionRecord
	if err := json.Unmarshal(row.Payload, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task record: %w", err)
	}
	return &rec, nil
}

// SQLAuditStore persists the audit trail to the audit_records table.
type SQLAuditStore struct {
	db *gorm.DB
}

// Append writes one record. Records are insert-only.
func (s *SQLAuditStore) Append(ctx context.Context, rec types.AuditRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	row := auditRow{
		RecordID:  rec.ID,
		TaskID:    rec.TaskID,
		AgentID:   rec.AgentID,
		Kind:      string(rec.Kind),
		Timestamp: rec.Timestamp,
		Payload:   payload,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Query returns matching records in append order.
func (s *SQLAuditStore) Query(ctx context.Context, q types.AuditQuery) ([]types.AuditRecord, error) {
	tx := s.db.WithContext(ctx).Model(&auditRow{}).Order("seq asc")
	if q.TaskID != "" {
		tx = tx.Where("task_id = ?", q.TaskID)
	}
	if q.AgentID != "" {
		tx = tx.Where("agent_id = ?", q.AgentID)
	}
	if q.Kind != "" {
		tx = tx.Where("kind = ?", string(q.Kind))
	}
	if !q.Since.IsZero() {
		tx = tx.Where("timestamp >= ?", q.Since)
	}
	if !q.Until.IsZero() {
		tx = tx.Where("timestamp <= ?", q.Until)
	}

	var rows []auditRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.AuditRecord, 0, len(rows))
	for _, row := range rows {
		var rec types.AuditRecord
		if err := json.Unmarshal(row.Payload, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit record %d: %w", row.Seq, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

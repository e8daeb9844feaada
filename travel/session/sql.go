package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqliteDriver "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
)

type messageRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"index;not null"`
	Role      string `gorm:"not null"`
	Content   string `gorm:"type:text"`
	Timestamp string
	CreatedAt time.Time
}

func (messageRow) TableName() string { return "session_messages" }

type stateRow struct {
	SessionID string `gorm:"primaryKey"`
	StateJSON string `gorm:"type:text;not null"`
	Version   int
	UpdatedAt time.Time
}

func (stateRow) TableName() string { return "session_states" }

// OpenGorm opens a sqlite or postgres database.
func OpenGorm(driver, dsn string) (*gorm.DB, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = "sqlite"
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		if driver != "sqlite" {
			return nil, fmt.Errorf("dsn is required for driver %q", driver)
		}
		dsn = "tripdesk.db"
	}

	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	switch driver {
	case "sqlite":
		return gorm.Open(sqliteDriver.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// SQLStore keeps sessions in a relational database through gorm.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore opens the database and migrates the session tables.
func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	db, err := OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open gorm store: %w", err)
	}
	store := &SQLStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) migrate() error {
	if err := s.db.AutoMigrate(&messageRow{}, &stateRow{}); err != nil {
		return fmt.Errorf("migrate session tables: %w", err)
	}
	return nil
}

// AppendMessage inserts msg.
func (s *SQLStore) AppendMessage(ctx context.Context, sessionID string, msg envelope.Message) (err error) {
	defer func() { recordOp("sql", "append_message", err) }()

	row := messageRow{
		SessionID: sessionID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append message: %w: %w", ErrUnavailable, err)
	}
	return nil
}

// History returns the session's messages in insertion order.
func (s *SQLStore) History(ctx context.Context, sessionID string) (_ []envelope.Message, err error) {
	defer func() { recordOp("sql", "history", err) }()

	var rows []messageRow
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read history: %w: %w", ErrUnavailable, err)
	}
	out := make([]envelope.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, envelope.Message{Role: envelope.Role(row.Role), Content: row.Content, Timestamp: row.Timestamp})
	}
	return out, nil
}

// GetState reads the state, or ErrNotFound.
func (s *SQLStore) GetState(ctx context.Context, sessionID string) (_ *envelope.ConversationState, err error) {
	defer func() { recordOp("sql", "get_state", err) }()

	var row stateRow
	err = s.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w: %w", ErrUnavailable, err)
	}
	return decodeState([]byte(row.StateJSON))
}

// SaveState upserts the state.
func (s *SQLStore) SaveState(ctx context.Context, sessionID string, state *envelope.ConversationState) (err error) {
	defer func() { recordOp("sql", "save_state", err) }()

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	row := stateRow{
		SessionID: sessionID,
		StateJSON: string(payload),
		Version:   state.Version,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state_json", "version", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("save state: %w: %w", ErrUnavailable, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

var _ Store = (*SQLStore)(nil)

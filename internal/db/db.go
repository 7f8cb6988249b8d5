package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

// Exchange is one stored question and answer of a session
type Exchange struct {
	bun.BaseModel `bun:"table:qa_exchanges,alias:qa"`
	ID            int64     `bun:"id,pk,autoincrement"`
	SessionID     string    `bun:"session_id,notnull"`
	DocumentID    string    `bun:"document_id"`
	Question      string    `bun:"question,notnull"`
	Answer        string    `bun:"answer,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the configured driver
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return sqldb, nil
	default:
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().Model((*Exchange)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	_, err := db.NewCreateIndex().
		Model((*Exchange)(nil)).
		Index("qa_exchanges_session_idx").
		IfNotExists().
		Column("session_id", "id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// drop table qa_exchanges
func DropExchanges(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Exchange)(nil)).IfExists().Exec(ctx)
	return err
}

// HistoryStore keeps the history of one session in Postgres
type HistoryStore struct {
	db         *bun.DB
	sessionID  string
	documentID func() string
}

// NewHistoryStore scopes the store to sessionID. documentID, when set, is
// called to tag every stored exchange with the active document.
func NewHistoryStore(db *bun.DB, sessionID string, documentID func() string) *HistoryStore {
	return &HistoryStore{db: db, sessionID: sessionID, documentID: documentID}
}

func (h *HistoryStore) Append(ctx context.Context, exchange models.QAExchange) error {
	row := &Exchange{
		SessionID: h.sessionID,
		Question:  exchange.Question,
		Answer:    exchange.Answer,
		CreatedAt: exchange.CreatedAt,
	}
	if h.documentID != nil {
		row.DocumentID = h.documentID()
	}
	_, err := h.db.NewInsert().Model(row).Exec(ctx)
	return err
}

// List returns the exchanges of the session, oldest first
func (h *HistoryStore) List(ctx context.Context) ([]models.QAExchange, error) {
	var rows []Exchange
	err := h.db.NewSelect().
		Model(&rows).
		Where("session_id = ?", h.sessionID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	exchanges := make([]models.QAExchange, len(rows))
	for i, r := range rows {
		exchanges[i] = models.QAExchange{Question: r.Question, Answer: r.Answer, CreatedAt: r.CreatedAt}
	}
	return exchanges, nil
}

func (h *HistoryStore) Clear(ctx context.Context) error {
	_, err := h.db.NewDelete().
		Model((*Exchange)(nil)).
		Where("session_id = ?", h.sessionID).
		Exec(ctx)
	return err
}

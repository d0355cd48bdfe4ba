package database

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PoolOptions tunes the connection pool.
type PoolOptions struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open parses url, applies opts and verifies the connection.
func Open(ctx context.Context, url string, opts PoolOptions) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns >= 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Store is Queries over a pool, plus the operations that need a transaction.
type Store struct {
	*Queries
	pool *pgxpool.Pool
}

// NewStore wraps pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Queries: New(pool), pool: pool}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUpload inserts a session and its file record atomically.
func (s *Store) CreateUpload(ctx context.Context, session CreateUploadSessionParams, file CreateUploadFileParams) (UploadSession, UploadFile, error) {
	var (
		sess UploadSession
		f    UploadFile
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		q := s.WithTx(tx)

		var err error
		sess, err = q.CreateUploadSession(ctx, session)
		if err != nil {
			return fmt.Errorf("insert upload session: %w", err)
		}

		file.SessionID = sess.ID
		f, err = q.CreateUploadFile(ctx, file)
		if err != nil {
			return fmt.Errorf("insert upload file: %w", err)
		}
		return nil
	})
	if err != nil {
		return UploadSession{}, UploadFile{}, err
	}
	return sess, f, nil
}

// CompleteUpload marks a PENDING session UPLOADED and records the file's
// etag, checksum and upload time in one transaction. It returns
// ErrSessionNotPending when another request already moved the session on.
func (s *Store) CompleteUpload(ctx context.Context, file MarkUploadFileUploadedParams) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		q := s.WithTx(tx)

		n, err := q.TransitionUploadSession(ctx, TransitionUploadSessionParams{
			ID:   file.SessionID,
			From: "PENDING",
			To:   "UPLOADED",
		})
		if err != nil {
			return fmt.Errorf("transition upload session: %w", err)
		}
		if n == 0 {
			return ErrSessionNotPending
		}

		if err := q.MarkUploadFileUploaded(ctx, file); err != nil {
			return fmt.Errorf("mark file uploaded: %w", err)
		}
		return nil
	})
}

// Package docstore keeps arbitrary JSON documents grouped by collection. It
// sits next to the harvester (the CLI records runs in it and the web pages
// read from it), the harvesting core itself never writes here.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"statharvest/internal/components/assert"
	"statharvest/internal/components/chrono"
	"statharvest/internal/components/telemetry"
	"statharvest/internal/docstore/db"
	configlibsql "statharvest/lib/configutil/libsql"

	"github.com/google/uuid"
)

const (
	report_store_insert = "store.insert"
	report_store_decode = "store.decode"
)

var ErrNotFound = errors.New("document not found")

type Document struct {
	ID         string
	Collection string
	Body       json.RawMessage
	CreatedAt  time.Time
}

type Store struct {
	db   *sql.DB
	qry  *db.Queries
	tel  telemetry.API
	time chrono.API
}

func NewStore(database *sql.DB, tel telemetry.API, clock chrono.API) Store {
	assert.NotNil(database)
	assert.NotNil(tel)
	assert.NotNil(clock)
	return Store{
		db:   database,
		qry:  db.New(database),
		tel:  telemetry.NewScopedAPI("docstore", tel),
		time: clock,
	}
}

// Open opens the configured database and makes sure the schema exists.
func Open(ctx context.Context, cfg configlibsql.Struct, tel telemetry.API, clock chrono.API) (Store, error) {
	database, err := cfg.OpenDB()
	if err != nil {
		return Store{}, fmt.Errorf("open document store: %w", err)
	}
	_, err = database.ExecContext(ctx, db.Schema)
	if err != nil {
		database.Close()
		return Store{}, fmt.Errorf("apply document store schema: %w", err)
	}
	return NewStore(database, tel, clock), nil
}

func (s Store) Close() error {
	return s.db.Close()
}

// Insert encodes doc as JSON and stores it under a new id.
func (s Store) Insert(ctx context.Context, collection string, doc any) (string, error) {
	if collection == "" {
		return "", fmt.Errorf("collection is required")
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	id := uuid.NewString()
	err = s.qry.InsertDocument(ctx, db.InsertDocumentParams{
		ID:         id,
		Collection: collection,
		Body:       body,
		CreatedAt:  s.time.Now().UnixMilli(),
	})
	if err != nil {
		s.tel.ReportBroken(report_store_insert, err, collection)
		return "", err
	}
	return id, nil
}

func (s Store) Get(ctx context.Context, id string) (Document, error) {
	row, err := s.qry.GetDocument(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Document{}, err
	}
	return toDocument(row), nil
}

// List returns documents newest first. An empty collection lists every
// collection, a limit <= 0 means no limit.
func (s Store) List(ctx context.Context, collection string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.qry.ListDocuments(ctx, db.ListDocumentsParams{
		Collection: collection,
		Limit:      int64(limit),
	})
	if err != nil {
		return nil, err
	}

	out := make([]Document, len(rows))
	for i, row := range rows {
		out[i] = toDocument(row)
	}
	return out, nil
}

func (s Store) Count(ctx context.Context, collection string) (int64, error) {
	return s.qry.CountDocuments(ctx, collection)
}

// Decode unmarshals the body of a stored document into out.
func (s Store) Decode(doc Document, out any) error {
	err := json.Unmarshal(doc.Body, out)
	if err != nil {
		s.tel.ReportWarning(report_store_decode, err, doc.ID)
	}
	return err
}

func toDocument(row db.Document) Document {
	return Document{
		ID:         row.ID,
		Collection: row.Collection,
		Body:       json.RawMessage(row.Body),
		CreatedAt:  time.UnixMilli(row.CreatedAt),
	}
}

package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Document struct {
	ID         string
	Collection string
	Body       []byte
	CreatedAt  int64
}

const insertDocument = `insert into documents (id, collection, body, created_at) values (?, ?, ?, ?)`

type InsertDocumentParams struct {
	ID         string
	Collection string
	Body       []byte
	CreatedAt  int64
}

func (q *Queries) InsertDocument(ctx context.Context, arg InsertDocumentParams) error {
	_, err := q.db.ExecContext(ctx, insertDocument, arg.ID, arg.Collection, arg.Body, arg.CreatedAt)
	return err
}

const getDocument = `select id, collection, body, created_at from documents where id = ?`

func (q *Queries) GetDocument(ctx context.Context, id string) (Document, error) {
	row := q.db.QueryRowContext(ctx, getDocument, id)
	var i Document
	err := row.Scan(&i.ID, &i.Collection, &i.Body, &i.CreatedAt)
	return i, err
}

const listDocuments = `select id, collection, body, created_at from documents
where (?1 = '' or collection = ?1)
order by created_at desc, rowid desc
limit ?2`

type ListDocumentsParams struct {
	Collection string
	Limit      int64
}

func (q *Queries) ListDocuments(ctx context.Context, arg ListDocumentsParams) ([]Document, error) {
	rows, err := q.db.QueryContext(ctx, listDocuments, arg.Collection, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Document
	for rows.Next() {
		var i Document
		err := rows.Scan(&i.ID, &i.Collection, &i.Body, &i.CreatedAt)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countDocuments = `select count(*) from documents where (?1 = '' or collection = ?1)`

func (q *Queries) CountDocuments(ctx context.Context, collection string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countDocuments, collection)
	var count int64
	err := row.Scan(&count)
	return count, err
}

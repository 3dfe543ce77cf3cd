// source: chat_documents.sql

package database

import (
	"context"
)

const appendDocument = `-- name: AppendDocument :one
INSERT INTO chat_documents (channel_path, doc_key, body)
VALUES ($1, $2, $3)
RETURNING id, channel_path, doc_key, body, created_at
`

type AppendDocumentParams struct {
	ChannelPath string
	DocKey      string
	Body        []byte
}

func (q *Queries) AppendDocument(ctx context.Context, arg AppendDocumentParams) (ChatDocument, error) {
	row := q.db.QueryRow(ctx, appendDocument, arg.ChannelPath, arg.DocKey, arg.Body)
	var i ChatDocument
	err := row.Scan(
		&i.ID,
		&i.ChannelPath,
		&i.DocKey,
		&i.Body,
		&i.CreatedAt,
	)
	return i, err
}

const listDocuments = `-- name: ListDocuments :many
SELECT id, channel_path, doc_key, body, created_at
FROM chat_documents
WHERE channel_path = $1
ORDER BY id ASC
`

func (q *Queries) ListDocuments(ctx context.Context, channelPath string) ([]ChatDocument, error) {
	rows, err := q.db.Query(ctx, listDocuments, channelPath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ChatDocument
	for rows.Next() {
		var i ChatDocument
		if err := rows.Scan(
			&i.ID,
			&i.ChannelPath,
			&i.DocKey,
			&i.Body,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

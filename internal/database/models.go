package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type ChatDocument struct {
	ID          int64
	ChannelPath string
	DocKey      string
	Body        []byte
	CreatedAt   pgtype.Timestamptz
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/GetStream/channel-session/session"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Postgres provides draft storage and a self-hosted chat client in
// PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and ping the DB to ensure the connection is
// working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// Close closes the database.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

// CreateSchema creates the tables used by Postgres if they do not exist.
func (pg *Postgres) CreateSchema(ctx context.Context) error {
	if _, err := pg.bun.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}
	for _, model := range []any{(*draft)(nil), (*channel)(nil), (*message)(nil), (*reaction)(nil)} {
		if _, err := pg.bun.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// LoadDraft returns the draft stored for the channel, or session.ErrNoDraft.
func (pg *Postgres) LoadDraft(ctx context.Context, id session.ChannelID) (session.Draft, error) {
	var d draft
	err := pg.bun.NewSelect().
		Model(&d).
		Where("channel_id = ?", string(id)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Draft{}, session.ErrNoDraft
	}
	if err != nil {
		return session.Draft{}, fmt.Errorf("select draft: %w", err)
	}
	return d.SessionDraft(), nil
}

// SaveDraft inserts the draft or replaces the channel's existing one.
func (pg *Postgres) SaveDraft(ctx context.Context, d session.Draft) error {
	m := &draft{
		ChannelID: string(d.ChannelID),
		Text:      d.Text,
		UpdatedAt: d.UpdatedAt,
	}
	_, err := pg.bun.NewInsert().
		Model(m).
		On("CONFLICT (channel_id) DO UPDATE").
		Set("text = EXCLUDED.text").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert draft: %w", err)
	}
	return nil
}

// DeleteDraft removes the channel's draft.
func (pg *Postgres) DeleteDraft(ctx context.Context, id session.ChannelID) error {
	_, err := pg.bun.NewDelete().
		Model((*draft)(nil)).
		Where("channel_id = ?", string(id)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// ListDrafts returns all drafts, most recently updated first.
func (pg *Postgres) ListDrafts(ctx context.Context) ([]session.Draft, error) {
	var drafts []draft
	if err := pg.bun.NewSelect().Model(&drafts).Order("updated_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]session.Draft, len(drafts))
	for i, d := range drafts {
		out[i] = d.SessionDraft()
	}
	return out, nil
}

// Channel returns the channel with the given id, creating it when it does
// not exist yet.
func (pg *Postgres) Channel(ctx context.Context, channelType string, id session.ChannelID) (session.Channel, error) {
	c := &channel{ID: string(id), Type: channelType}
	_, err := pg.bun.NewInsert().
		Model(c).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return session.Channel{}, fmt.Errorf("insert channel: %w", err)
	}
	if err := pg.bun.NewSelect().Model(c).WherePK().Scan(ctx); err != nil {
		return session.Channel{}, fmt.Errorf("select channel: %w", err)
	}
	return c.SessionChannel(), nil
}

// messageWindow is the number of most recent messages loaded per channel.
const messageWindow = 100

// Messages returns the latest messages of the channel, oldest first.
func (pg *Postgres) Messages(ctx context.Context, id session.ChannelID) ([]session.Message, error) {
	var msgs []message
	err := pg.bun.NewSelect().
		Model(&msgs).
		Relation("Reactions").
		Where("channel_id = ?", string(id)).
		Order("created_at DESC").
		Limit(messageWindow).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	out := make([]session.Message, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-i-1] = m.SessionMessage()
	}
	return out, nil
}

// SendMessage inserts a message into the channel. The returned message holds
// auto generated fields, such as the message id.
func (pg *Postgres) SendMessage(ctx context.Context, id session.ChannelID, msg session.Message) (session.Message, error) {
	m := &message{
		ChannelID:       string(id),
		MessageText:     msg.Text,
		UserID:          msg.User.ID,
		UserName:        msg.User.Name,
		QuotedMessageID: msg.QuotedMessageID,
		Attachments:     msg.Attachments,
		CreatedAt:       msg.CreatedAt,
	}
	if _, err := pg.bun.NewInsert().Model(m).Returning("*").Exec(ctx); err != nil {
		return session.Message{}, fmt.Errorf("insert: %w", err)
	}
	return m.SessionMessage(), nil
}

// SendReaction inserts a message reaction into the database.
func (pg *Postgres) SendReaction(ctx context.Context, r session.Reaction) (session.Reaction, error) {
	rm := &reaction{
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Type:      r.Type,
		Score:     r.Score,
		CreatedAt: r.CreatedAt,
	}
	if _, err := pg.bun.NewInsert().Model(rm).Returning("*").Exec(ctx); err != nil {
		return session.Reaction{}, fmt.Errorf("insert: %w", err)
	}
	return rm.SessionReaction(), nil
}

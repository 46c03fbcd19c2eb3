package postgres

import (
	"time"

	"github.com/GetStream/channel-session/session"
	"github.com/uptrace/bun"
)

// A draft represents a channel draft in the database.
type draft struct {
	bun.BaseModel `bun:"table:drafts"`

	ChannelID string    `bun:",pk"`
	Text      string    `bun:",notnull"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:now()"`
}

type channel struct {
	ID      string         `bun:",pk"`
	Type    string         `bun:",notnull,default:'messaging'"`
	Name    string         `bun:",nullzero"`
	Members []session.User `bun:"type:jsonb"`
}

// A message represents a message in the database.
type message struct {
	ID              string     `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	ChannelID       string     `bun:",notnull"`
	MessageText     string     `bun:"message_text,notnull"`
	UserID          string     `bun:",notnull"`
	UserName        string     `bun:",nullzero"`
	ReplyCount      int        `bun:",notnull,default:0"`
	QuotedMessageID string     `bun:",nullzero,type:uuid"`
	Attachments     int        `bun:",notnull,default:0"`
	CreatedAt       time.Time  `bun:",nullzero,default:now()"`
	Reactions       []reaction `bun:"rel:has-many,join:id=message_id"`
}

type reaction struct {
	ID        string    `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	MessageID string    `bun:",notnull"`
	UserID    string    `bun:",notnull"`
	Type      string    `bun:",notnull"`
	Score     int       `bun:",notnull,default:1"`
	CreatedAt time.Time `bun:",nullzero,default:now()"`
}

func (d draft) SessionDraft() session.Draft {
	return session.Draft{
		ChannelID: session.ChannelID(d.ChannelID),
		Text:      d.Text,
		UpdatedAt: d.UpdatedAt,
	}
}

func (c channel) SessionChannel() session.Channel {
	return session.Channel{
		ID:          session.ChannelID(c.ID),
		Type:        c.Type,
		Name:        c.Name,
		Members:     c.Members,
		Initialized: true,
	}
}

func (m message) SessionMessage() session.Message {
	reactions := make([]session.Reaction, len(m.Reactions))
	for i, r := range m.Reactions {
		reactions[i] = r.SessionReaction()
	}

	return session.Message{
		ID:              m.ID,
		ChannelID:       session.ChannelID(m.ChannelID),
		Text:            m.MessageText,
		User:            session.User{ID: m.UserID, Name: m.UserName},
		CreatedAt:       m.CreatedAt,
		ReplyCount:      m.ReplyCount,
		QuotedMessageID: m.QuotedMessageID,
		Attachments:     m.Attachments,
		Reactions:       reactions,
	}
}

func (r reaction) SessionReaction() session.Reaction {
	return session.Reaction{
		ID:        r.ID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Type:      r.Type,
		Score:     r.Score,
		CreatedAt: r.CreatedAt,
	}
}

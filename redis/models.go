package redis

import (
	"time"

	"github.com/GetStream/channel-session/session"
)

// A draft represents a channel draft stored in a Redis hash. UpdatedAt holds
// unix nanoseconds, which is also the score in the draft index.
type draft struct {
	ChannelID string `redis:"channel_id"`
	Text      string `redis:"text"`
	UpdatedAt int64  `redis:"updated_at"`
}

func newDraft(d session.Draft) *draft {
	return &draft{
		ChannelID: string(d.ChannelID),
		Text:      d.Text,
		UpdatedAt: d.UpdatedAt.UnixNano(),
	}
}

func (d draft) SessionDraft() session.Draft {
	return session.Draft{
		ChannelID: session.ChannelID(d.ChannelID),
		Text:      d.Text,
		UpdatedAt: time.Unix(0, d.UpdatedAt).UTC(),
	}
}

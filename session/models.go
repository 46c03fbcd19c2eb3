package session

import "time"

// A ChannelID uniquely identifies a conversation.
type ChannelID string

// A Draft is unsent composer text kept for a channel.
type Draft struct {
	ChannelID ChannelID `json:"channel_id"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// A User is a chat participant.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// A Channel is a conversation as handed out by the chat client.
type Channel struct {
	ID          ChannelID `json:"id"`
	Type        string    `json:"type"`
	Name        string    `json:"name,omitempty"`
	Members     []User    `json:"members,omitempty"`
	Initialized bool      `json:"initialized"`
}

// A Message represents a message in a channel.
type Message struct {
	ID              string     `json:"id"`
	ChannelID       ChannelID  `json:"channel_id"`
	Text            string     `json:"text"`
	User            User       `json:"user"`
	CreatedAt       time.Time  `json:"created_at"`
	ReplyCount      int        `json:"reply_count"`
	QuotedMessageID string     `json:"quoted_message_id,omitempty"`
	Attachments     int        `json:"attachments"`
	Reactions       []Reaction `json:"reactions"`
}

// A Reaction represents a reaction to a message such as a like.
type Reaction struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

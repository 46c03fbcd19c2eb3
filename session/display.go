package session

import "strings"

// Group styles the message list assigns to a message within a run of
// messages by the same user.
const (
	GroupSingle = "single"
	GroupTop    = "top"
	GroupMiddle = "middle"
	GroupBottom = "bottom"
)

// ShowHeader reports whether the message header is rendered at all.
func ShowHeader(m Message) bool {
	return m.Attachments > 0
}

// ShowUserBar reports whether the author name and time are shown above a
// message.
func ShowUserBar(m Message, groupStyle string) bool {
	return groupStyle == GroupSingle ||
		groupStyle == GroupTop ||
		m.ReplyCount > 0 ||
		m.QuotedMessageID != ""
}

// OtherMembers returns the members of channel other than the user me.
func OtherMembers(channel Channel, me string) []User {
	var out []User
	for _, u := range channel.Members {
		if u.ID != me {
			out = append(out, u)
		}
	}
	return out
}

// ChannelDisplayName returns the channel name, or the names of the other
// members for unnamed direct conversations.
func ChannelDisplayName(channel Channel, me string) string {
	if channel.Name != "" {
		return channel.Name
	}
	others := OtherMembers(channel, me)
	names := make([]string, 0, len(others))
	for _, u := range others {
		name := u.Name
		if name == "" {
			name = u.ID
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

// ConversationPreview renders the last of messages for the direct messages
// list. It reports false when there is no message to preview.
func ConversationPreview(messages []Message, me string) (string, bool) {
	if len(messages) == 0 {
		return "", false
	}
	last := messages[len(messages)-1]
	if last.User.ID == me {
		return "You:  " + last.Text, true
	}
	return last.User.Name + ": " + last.Text, true
}

// GroupStyles assigns a group style to each of messages, which are ordered
// oldest first. Consecutive messages by the same user form a group.
func GroupStyles(messages []Message) []string {
	styles := make([]string, len(messages))
	for i, m := range messages {
		prev := i > 0 && messages[i-1].User.ID == m.User.ID
		next := i < len(messages)-1 && messages[i+1].User.ID == m.User.ID
		switch {
		case prev && next:
			styles[i] = GroupMiddle
		case prev:
			styles[i] = GroupBottom
		case next:
			styles[i] = GroupTop
		default:
			styles[i] = GroupSingle
		}
	}
	return styles
}

package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// A ChatClient is the hosted chat service the session talks to.
type ChatClient interface {
	// Channel returns the channel of the given type, creating a handle for
	// it if needed.
	Channel(ctx context.Context, channelType string, id ChannelID) (Channel, error)
	// Messages returns the loaded messages of a channel, oldest first.
	Messages(ctx context.Context, id ChannelID) ([]Message, error)
	SendMessage(ctx context.Context, id ChannelID, msg Message) (Message, error)
	SendReaction(ctx context.Context, r Reaction) (Reaction, error)
}

// A Navigator is the navigation host of the channel screen.
type Navigator interface {
	Navigate(screen string, params map[string]string)
	GoBack()
}

// A Scroller scrolls the rendered message list.
type Scroller interface {
	ScrollToIndex(index int)
}

// ThreadScreen is the screen OpenThread navigates to.
const ThreadScreen = "ThreadScreen"

// MessagingType is the channel type of channel screens.
const MessagingType = "messaging"

// RouteParams are the navigation parameters of the channel screen. Either
// ChannelID or Channel must be set; MessageID optionally targets a message.
type RouteParams struct {
	ChannelID ChannelID
	Channel   *Channel
	MessageID string
}

// Deps holds the collaborators of a channel session.
type Deps struct {
	Logger         *slog.Logger
	Drafts         *DraftStore
	Chat           ChatClient
	Navigator      Navigator
	ActionSheet    Surface
	ReactionPicker Surface
	Scroller       Scroller
}

// ChannelSession is the state behind an open channel screen: the composer
// text reconciled with its draft and the overlay coordinator.
type ChannelSession struct {
	logger    *slog.Logger
	drafts    *DraftStore
	chat      ChatClient
	navigator Navigator
	scroller  Scroller

	channel   Channel
	messageID string
	overlay   *OverlayCoordinator

	mu      sync.Mutex
	text    string
	initial string
}

// Open mounts the channel named by params and seeds the composer with its
// draft. With neither a channel id nor a channel the navigator goes back and
// ErrNoChannel is returned.
func Open(ctx context.Context, deps Deps, params RouteParams) (*ChannelSession, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if params.ChannelID == "" && params.Channel == nil {
		if deps.Navigator != nil {
			deps.Navigator.GoBack()
		}
		return nil, ErrNoChannel
	}

	var channel Channel
	if params.Channel != nil && params.Channel.Initialized {
		logger.Debug("Channel already initialized", "channel_id", params.Channel.ID)
		channel = *params.Channel
	} else {
		id := params.ChannelID
		if id == "" {
			id = params.Channel.ID
		}
		var err error
		channel, err = deps.Chat.Channel(ctx, MessagingType, id)
		if err != nil {
			return nil, fmt.Errorf("get channel: %w", err)
		}
	}

	draftID := params.ChannelID
	if draftID == "" {
		draftID = params.Channel.ID
	}

	s := &ChannelSession{
		logger:    logger.With("channel_id", channel.ID),
		drafts:    deps.Drafts,
		chat:      deps.Chat,
		navigator: deps.Navigator,
		scroller:  deps.Scroller,
		channel:   channel,
		messageID: params.MessageID,
		overlay:   NewOverlayCoordinator(channel, deps.ActionSheet, deps.ReactionPicker),
	}
	if d, ok := s.drafts.Get(ctx, draftID); ok {
		s.text = d.Text
		s.initial = d.Text
	}
	return s, nil
}

// Channel returns the mounted channel.
func (s *ChannelSession) Channel() Channel { return s.channel }

// MessageID returns the message the screen was opened for, if any.
func (s *ChannelSession) MessageID() string { return s.messageID }

// Overlay returns the session's overlay coordinator.
func (s *ChannelSession) Overlay() *OverlayCoordinator { return s.overlay }

// InitialText returns the draft the composer was seeded with.
func (s *ChannelSession) InitialText() string { return s.initial }

// Text returns the current composer text.
func (s *ChannelSession) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Placeholder returns the composer placeholder for the channel.
func (s *ChannelSession) Placeholder() string {
	if s.channel.Name == "" {
		return "Message"
	}
	return "Message #" + strings.Replace(strings.ToLower(s.channel.Name), " ", "_", 1)
}

// ChangeText updates the composer text and saves it as the draft without
// waiting for the write.
func (s *ChannelSession) ChangeText(text string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	return s.drafts.SetAsync(s.channel.ID, text)
}

// Send sends the composer text as userID and clears the draft once the
// message is accepted. Text typed while the message is in flight is kept, both
// in the composer and as the draft.
func (s *ChannelSession) Send(ctx context.Context, userID string) (Message, error) {
	s.mu.Lock()
	text := s.text
	mark := s.drafts.mark()
	s.mu.Unlock()
	if isBlank(text) {
		return Message{}, ErrEmptyMessage
	}

	msg, err := s.chat.SendMessage(ctx, s.channel.ID, Message{
		ChannelID: s.channel.ID,
		Text:      text,
		User:      User{ID: userID},
		CreatedAt: time.Now(),
	})
	if err != nil {
		return Message{}, fmt.Errorf("send message: %w", err)
	}

	if !s.drafts.clearSince(ctx, s.channel.ID, mark) {
		s.logger.Debug("Kept draft typed during send")
	}

	s.mu.Lock()
	if s.text == text {
		s.text = ""
	}
	s.mu.Unlock()
	s.logger.Info("Message sent", "message_id", msg.ID)
	return msg, nil
}

// Close unmounts the session: the current text is saved and any overlay is
// dismissed.
func (s *ChannelSession) Close(ctx context.Context) {
	s.overlay.OnExternalNavigation()
	s.drafts.Set(ctx, s.channel.ID, s.Text())
}

// LongPress opens the action sheet for message.
func (s *ChannelSession) LongPress(message Message, handlers ActionHandlers) {
	s.overlay.OpenActionSheet(message, handlers)
}

// OpenReactionPicker opens the reaction picker for message, closing the
// action sheet first.
func (s *ChannelSession) OpenReactionPicker(message Message) {
	s.overlay.OpenReactionPicker(message)
}

// React adds a reaction of the given type to message and closes the picker.
func (s *ChannelSession) React(ctx context.Context, message Message, reactionType, userID string) (Reaction, error) {
	r, err := s.chat.SendReaction(ctx, Reaction{
		MessageID: message.ID,
		UserID:    userID,
		Type:      reactionType,
		Score:     1,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return Reaction{}, fmt.Errorf("send reaction: %w", err)
	}
	if st, ok := s.overlay.State().(ReactionPicker); ok && st.Message.ID == message.ID {
		s.overlay.Dismiss()
	}
	return r, nil
}

// Blur is called when the screen loses focus.
func (s *ChannelSession) Blur() {
	s.overlay.OnExternalNavigation()
}

// OpenThread navigates to the thread of message.
func (s *ChannelSession) OpenThread(message Message) {
	s.overlay.OnExternalNavigation()
	if s.navigator == nil {
		return
	}
	s.navigator.Navigate(ThreadScreen, map[string]string{
		"channelId": string(s.channel.ID),
		"threadId":  message.ID,
	})
}

// ScrollToMessage scrolls the list to the message with the given id. It
// reports false, without scrolling, when the message is not loaded.
func (s *ChannelSession) ScrollToMessage(ctx context.Context, id string) (int, bool, error) {
	msgs, err := s.chat.Messages(ctx, s.channel.ID)
	if err != nil {
		return 0, false, fmt.Errorf("list messages: %w", err)
	}
	idx, ok := ScrollIndex(msgs, id)
	if !ok {
		s.logger.Debug("Scroll target not loaded", "message_id", id)
		return 0, false, nil
	}
	if s.scroller != nil {
		s.scroller.ScrollToIndex(idx)
	}
	return idx, true, nil
}

package session

import (
	"context"
	"fmt"
	"sync"
)

// A Surface is a presentation handle such as a bottom sheet. The coordinator
// calls it while holding its lock, so a Surface must not call back into the
// coordinator from Present or Dismiss.
type Surface interface {
	Present()
	Dismiss()
}

// OverlayKind names an overlay variant.
type OverlayKind int

const (
	OverlayClosed OverlayKind = iota
	OverlayActionSheet
	OverlayReactionPicker
)

func (k OverlayKind) String() string {
	switch k {
	case OverlayClosed:
		return "closed"
	case OverlayActionSheet:
		return "action_sheet"
	case OverlayReactionPicker:
		return "reaction_picker"
	}
	return fmt.Sprintf("OverlayKind(%d)", int(k))
}

// OverlayState is one of Closed, ActionSheet or ReactionPicker.
type OverlayState interface {
	Kind() OverlayKind
}

// Closed means no overlay is shown.
type Closed struct{}

// ActionSheet is the long-press sheet for a message.
type ActionSheet struct {
	Message            Message
	Handlers           ActionHandlers
	OpenReactionPicker func(Message)
}

// ReactionPicker is the reaction picker for a message.
type ReactionPicker struct {
	Channel Channel
	Message Message
}

func (Closed) Kind() OverlayKind { return OverlayClosed }
func (ActionSheet) Kind() OverlayKind { return OverlayActionSheet }
func (ReactionPicker) Kind() OverlayKind { return OverlayReactionPicker }

// An Action is an entry of the message action sheet.
type Action string

const (
	ActionCopy        Action = "copy"
	ActionThreadReply Action = "thread_reply"
)

// ActionHandlers maps the actions offered for a message to their handlers.
type ActionHandlers map[Action]func(context.Context) error

type surfaceOp int

const (
	dismissActionSheet surfaceOp = iota
	presentActionSheet
	dismissReactionPicker
	presentReactionPicker
)

type edge struct {
	from, to OverlayKind
}

// transitions lists the surface calls for every legal edge, in order. An edge
// between the same open kind swaps the payload only, so the surface is not
// re-presented.
var transitions = map[edge][]surfaceOp{
	{OverlayClosed, OverlayClosed}:                 nil,
	{OverlayClosed, OverlayActionSheet}:            {presentActionSheet},
	{OverlayClosed, OverlayReactionPicker}:         {presentReactionPicker},
	{OverlayActionSheet, OverlayClosed}:            {dismissActionSheet},
	{OverlayActionSheet, OverlayActionSheet}:       nil,
	{OverlayActionSheet, OverlayReactionPicker}:    {dismissActionSheet, presentReactionPicker},
	{OverlayReactionPicker, OverlayClosed}:         {dismissReactionPicker},
	{OverlayReactionPicker, OverlayActionSheet}:    {dismissReactionPicker, presentActionSheet},
	{OverlayReactionPicker, OverlayReactionPicker}: nil,
}

// OverlayCoordinator keeps at most one overlay open for a channel screen.
type OverlayCoordinator struct {
	channel        Channel
	actionSheet    Surface
	reactionPicker Surface

	mu        sync.Mutex
	state     OverlayState
	observers []func(OverlayState)
}

// NewOverlayCoordinator returns a closed coordinator for channel. Nil surfaces
// are allowed and ignored.
func NewOverlayCoordinator(channel Channel, actionSheet, reactionPicker Surface) *OverlayCoordinator {
	return &OverlayCoordinator{
		channel:        channel,
		actionSheet:    actionSheet,
		reactionPicker: reactionPicker,
		state:          Closed{},
	}
}

// State returns the current overlay.
func (c *OverlayCoordinator) State() OverlayState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn to receive every new state. fn runs with the lock
// held and must not call the coordinator.
func (c *OverlayCoordinator) Subscribe(fn func(OverlayState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// OpenActionSheet shows the action sheet for message. An open reaction picker
// is dismissed first.
func (c *OverlayCoordinator) OpenActionSheet(message Message, handlers ActionHandlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transition(ActionSheet{
		Message:            message,
		Handlers:           handlers,
		OpenReactionPicker: c.OpenReactionPicker,
	}, true)
}

// OpenReactionPicker shows the reaction picker for message. An open action
// sheet is dismissed before the picker is presented.
func (c *OverlayCoordinator) OpenReactionPicker(message Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transition(ReactionPicker{Channel: c.channel, Message: message}, true)
}

// Dismiss closes any open overlay.
func (c *OverlayCoordinator) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transition(Closed{}, true)
}

// OnExternalNavigation closes any open overlay when the screen loses focus.
func (c *OverlayCoordinator) OnExternalNavigation() {
	c.Dismiss()
}

// Dismissed records that the surface for kind was closed by the user. Stale
// reports for an overlay that is no longer shown are ignored.
func (c *OverlayCoordinator) Dismissed(kind OverlayKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kind == OverlayClosed || c.state.Kind() != kind {
		return
	}
	c.transition(Closed{}, false)
}

// Run invokes the handler for action on the open action sheet. On success the
// sheet is dismissed, unless another overlay replaced it meanwhile.
func (c *OverlayCoordinator) Run(ctx context.Context, action Action) error {
	c.mu.Lock()
	sheet, ok := c.state.(ActionSheet)
	c.mu.Unlock()
	if !ok {
		return ErrNoActionSheet
	}
	fn, ok := sheet.Handlers[action]
	if !ok || fn == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	if err := fn(ctx); err != nil {
		return fmt.Errorf("run %s: %w", action, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.state.(ActionSheet); ok && cur.Message.ID == sheet.Message.ID {
		c.transition(Closed{}, true)
	}
	return nil
}

// transition moves to next. With drive set the surfaces are driven along the
// edge; otherwise only the state changes. c.mu must be held.
func (c *OverlayCoordinator) transition(next OverlayState, drive bool) {
	from := c.state.Kind()
	ops, ok := transitions[edge{from, next.Kind()}]
	if !ok {
		panic(fmt.Sprintf("session: no overlay transition from %s to %s", from, next.Kind()))
	}
	if from == OverlayClosed && next.Kind() == OverlayClosed {
		return
	}
	if drive {
		for _, op := range ops {
			c.do(op)
		}
	}
	c.state = next
	for _, fn := range c.observers {
		fn(next)
	}
}

func (c *OverlayCoordinator) do(op surfaceOp) {
	var s Surface
	switch op {
	case dismissActionSheet, presentActionSheet:
		s = c.actionSheet
	case dismissReactionPicker, presentReactionPicker:
		s = c.reactionPicker
	}
	if s == nil {
		return
	}
	switch op {
	case presentActionSheet, presentReactionPicker:
		s.Present()
	default:
		s.Dismiss()
	}
}

package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/GetStream/channel-session/session"
	"github.com/google/uuid"
)

// surface stands in for a bottom sheet rendered by a remote client. The client
// reads its visibility from the overlay endpoints.
type surface struct {
	mu      sync.Mutex
	visible bool
}

func (s *surface) Present() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = true
}

func (s *surface) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = false
}

func (s *surface) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// navigator records the last navigation the session asked the client for.
type navigator struct {
	mu   sync.Mutex
	last *navigation
}

func (n *navigator) Navigate(screen string, params map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.last = &navigation{Screen: screen, Params: params}
}

func (n *navigator) GoBack() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.last = &navigation{Screen: "back"}
}

func (n *navigator) Last() *navigation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}

// scroller records the last index the session scrolled to.
type scroller struct {
	mu    sync.Mutex
	index *int
}

func (s *scroller) ScrollToIndex(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = &index
}

// Index returns the last index scrolled to, or nil.
func (s *scroller) Index() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// A remoteSession is a channel session driven over HTTP.
type remoteSession struct {
	*session.ChannelSession
	sheet    *surface
	picker   *surface
	nav      *navigator
	scroller *scroller

	lastSeen time.Time // guarded by registry.mu
}

func (rs *remoteSession) overlay() overlay {
	return newOverlay(rs.Overlay().State(), rs.sheet, rs.picker)
}

type registry struct {
	mu       sync.RWMutex
	sessions map[string]*remoteSession
	now      func() time.Time
}

func newRegistry() *registry {
	return &registry{
		sessions: make(map[string]*remoteSession),
		now:      time.Now,
	}
}

func (r *registry) add(rs *remoteSession) string {
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	rs.lastSeen = r.now()
	r.sessions[id] = rs
	return id
}

// get returns the session and marks it as seen.
func (r *registry) get(id string) (*remoteSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.sessions[id]
	if ok {
		rs.lastSeen = r.now()
	}
	return rs, ok
}

func (r *registry) remove(id string) (*remoteSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.sessions[id]
	delete(r.sessions, id)
	return rs, ok
}

// expire removes and returns the sessions not seen for ttl.
func (r *registry) expire(ttl time.Duration) map[string]*remoteSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-ttl)
	expired := make(map[string]*remoteSession)
	for id, rs := range r.sessions {
		if rs.lastSeen.Before(cutoff) {
			expired[id] = rs
			delete(r.sessions, id)
		}
	}
	return expired
}

// drain removes and returns every session.
func (r *registry) drain() map[string]*remoteSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sessions
	r.sessions = make(map[string]*remoteSession)
	return all
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ExpireSessions closes sessions that have been idle for ttl, saving their
// composer text as drafts. Clients that disconnect without closing their
// session are cleaned up this way. Once ctx is done the remaining sessions are
// closed too.
func (a *API) ExpireSessions(ctx context.Context, ttl time.Duration) error {
	a.once.Do(a.setupRoutes)
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}
	ticker := time.NewTicker(max(ttl/2, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.closeSessions(closeCtx, a.sessions.drain(), "Session closed on shutdown")
			return nil
		case <-ticker.C:
			a.closeSessions(ctx, a.sessions.expire(ttl), "Session expired")
		}
	}
}

func (a *API) closeSessions(ctx context.Context, sessions map[string]*remoteSession, msg string) {
	for id, rs := range sessions {
		rs.Close(ctx)
		a.Logger.Info(msg, "session_id", id, "channel_id", rs.Channel().ID)
	}
}

// session returns the session named by the sessionID path value.
func (a *API) session(w http.ResponseWriter, r *http.Request) (*remoteSession, bool) {
	rs, ok := a.sessions.get(r.PathValue("sessionID"))
	if !ok {
		a.respond(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
		return nil, false
	}
	return rs, true
}

// message looks up a loaded message of the session's channel.
func (a *API) message(w http.ResponseWriter, r *http.Request, rs *remoteSession, id string) (session.Message, bool) {
	msgs, err := a.Chat.Messages(r.Context(), rs.Channel().ID)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list messages")
		return session.Message{}, false
	}
	for _, m := range msgs {
		if m.ID == id {
			return m, true
		}
	}
	a.respondError(w, http.StatusNotFound, session.ErrIndexNotFound, "Message not found")
	return session.Message{}, false
}

func (a *API) openSession(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			ChannelID string `json:"channel_id" validate:"id"`
			MessageID string `json:"message_id" validate:"omitempty,id"`
		}
		response struct {
			ID          string          `json:"id"`
			Channel     session.Channel `json:"channel"`
			Text        string          `json:"text"`
			Placeholder string          `json:"placeholder"`
			MessageID   string          `json:"message_id,omitempty"`
		}
	)

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	rs := &remoteSession{
		sheet:    &surface{},
		picker:   &surface{},
		nav:      &navigator{},
		scroller: &scroller{},
	}
	cs, err := session.Open(r.Context(), session.Deps{
		Logger:         a.Logger,
		Drafts:         a.Drafts,
		Chat:           a.Chat,
		Navigator:      rs.nav,
		ActionSheet:    rs.sheet,
		ReactionPicker: rs.picker,
		Scroller:       rs.scroller,
	}, session.RouteParams{
		ChannelID: session.ChannelID(body.ChannelID),
		MessageID: body.MessageID,
	})
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not open channel")
		return
	}
	rs.ChannelSession = cs
	id := a.sessions.add(rs)
	cs.Overlay().Subscribe(func(st session.OverlayState) {
		a.Logger.Debug("Overlay changed", "session_id", id, "kind", st.Kind().String())
	})

	a.respond(w, http.StatusCreated, response{
		ID:          id,
		Channel:     cs.Channel(),
		Text:        cs.Text(),
		Placeholder: cs.Placeholder(),
		MessageID:   cs.MessageID(),
	})
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	type response struct {
		ID          string          `json:"id"`
		Channel     session.Channel `json:"channel"`
		Text        string          `json:"text"`
		Placeholder string          `json:"placeholder"`
		MessageID   string          `json:"message_id,omitempty"`
		Overlay     overlay         `json:"overlay"`
		Navigation  *navigation     `json:"navigation,omitempty"`
		ScrollIndex *int            `json:"scroll_index,omitempty"`
	}

	rs, ok := a.session(w, r)
	if !ok {
		return
	}
	a.respond(w, http.StatusOK, response{
		ID:          r.PathValue("sessionID"),
		Channel:     rs.Channel(),
		Text:        rs.Text(),
		Placeholder: rs.Placeholder(),
		MessageID:   rs.MessageID(),
		Overlay:     rs.overlay(),
		Navigation:  rs.nav.Last(),
		ScrollIndex: rs.scroller.Index(),
	})
}

func (a *API) closeSession(w http.ResponseWriter, r *http.Request) {
	rs, ok := a.sessions.remove(r.PathValue("sessionID"))
	if !ok {
		a.respond(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
		return
	}
	rs.Close(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) changeText(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Text string `json:"text"`
	}

	rs, ok := a.session(w, r)
	if !ok {
		return
	}
	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	// The draft write is not awaited so typing is never held up by storage.
	rs.ChangeText(body.Text)
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	type request struct {
		UserID string `json:"user_id" validate:"id"`
	}

	rs, ok := a.session(w, r)
	if !ok {
		return
	}
	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	msg, err := rs.Send(r.Context(), body.UserID)
	if errors.Is(err, session.ErrEmptyMessage) {
		a.respondError(w, http.StatusBadRequest, err, "Message is empty")
		return
	}
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not send message")
		return
	}
	a.respond(w, http.StatusCreated, msg)
}

func (a *API) blur(w http.ResponseWriter, r *http.Request) {
	rs, ok := a.session(w, r)
	if !ok {
		return
	}
	rs.Blur()
	a.respond(w, http.StatusOK, rs.overlay())
}

func (a *API) openThread(w http.ResponseWriter, r *http.Request) {
	type request struct {
		MessageID string `json:"message_id" validate:"id"`
	}

	rs, ok := a.session(w, r)
	if !ok {
		return
	}
	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}
	msg, ok := a.message(w, r, rs, body.MessageID)
	if !ok {
		return
	}

	rs.OpenThread(msg)
	a.respond(w, http.StatusOK, rs.nav.Last())
}

func (a *API) scrollToMessage(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			MessageID string `json:"message_id" validate:"id"`
		}
		response struct {
			Index int `json:"index"`
		}
	)

	rs, ok := a.session(w, r)
	if !ok {
		return
	}
	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	idx, ok, err := rs.ScrollToMessage(r.Context(), body.MessageID)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list messages")
		return
	}
	if !ok {
		a.respondError(w, http.StatusNotFound, session.ErrIndexNotFound, "Message not loaded")
		return
	}
	a.respond(w, http.StatusOK, response{Index: idx})
}

func (a *API) createReaction(w http.ResponseWriter, r *http.Request) {
	type request struct {
		MessageID string `json:"message_id" validate:"id"`
		Type      string `json:"type" validate:"required"`
		UserID    string `json:"user_id" validate:"id"`
	}

	rs, ok := a.session(w, r)
	if !ok {
		return
	}
	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}
	msg, ok := a.message(w, r, rs, body.MessageID)
	if !ok {
		return
	}

	reaction, err := rs.React(r.Context(), msg, body.Type, body.UserID)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not create reaction")
		return
	}
	a.respond(w, http.StatusCreated, reaction)
}

func (a *API) getOverlay(w http.ResponseWriter, r *http.Request) {
	rs, ok := a.session(w, r)
	if !ok {
		return
	}
	a.respond(w, http.StatusOK, rs.overlay())
}

func (a *API) dismissOverlay(w http.ResponseWriter, r *http.Request) {
	rs, ok := a.session(w, r)
	if !ok {
		return
	}
	rs.Overlay().Dismiss()
	a.respond(w, http.StatusOK, rs.overlay())
}

// overlayDismissed records that the client closed an overlay itself, for
// example with a swipe.
func (a *API) overlayDismissed(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Kind string `json:"kind" validate:"oneof=action_sheet reaction_picker"`
	}

	rs, ok := a.session(w, r)
	if !ok {
		return
	}
	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	// The client has already hidden the surface.
	kind, surface := session.OverlayActionSheet, rs.sheet
	if body.Kind == session.OverlayReactionPicker.String() {
		kind, surface = session.OverlayReactionPicker, rs.picker
	}
	surface.Dismiss()
	rs.Overlay().Dismissed(kind)
	a.respond(w, http.StatusOK, rs.overlay())
}

type overlayRequest struct {
	MessageID string `json:"message_id" validate:"id"`
}

func (a *API) openActionSheet(w http.ResponseWriter, r *http.Request) {
	rs, ok := a.session(w, r)
	if !ok {
		return
	}
	var body overlayRequest
	if !a.decodeBody(w, r, &body) {
		return
	}
	msg, ok := a.message(w, r, rs, body.MessageID)
	if !ok {
		return
	}

	rs.LongPress(msg, a.actionHandlers(rs, msg))
	a.respond(w, http.StatusOK, rs.overlay())
}

func (a *API) openReactionPicker(w http.ResponseWriter, r *http.Request) {
	rs, ok := a.session(w, r)
	if !ok {
		return
	}
	var body overlayRequest
	if !a.decodeBody(w, r, &body) {
		return
	}
	msg, ok := a.message(w, r, rs, body.MessageID)
	if !ok {
		return
	}

	rs.OpenReactionPicker(msg)
	a.respond(w, http.StatusOK, rs.overlay())
}

func (a *API) runAction(w http.ResponseWriter, r *http.Request) {
	rs, ok := a.session(w, r)
	if !ok {
		return
	}

	err := rs.Overlay().Run(r.Context(), session.Action(r.PathValue("action")))
	switch {
	case errors.Is(err, session.ErrNoActionSheet):
		a.respondError(w, http.StatusConflict, err, "No action sheet open")
		return
	case errors.Is(err, session.ErrUnknownAction):
		a.respondError(w, http.StatusBadRequest, err, "Unknown action")
		return
	case err != nil:
		a.respondError(w, http.StatusInternalServerError, err, "Could not run action")
		return
	}
	a.respond(w, http.StatusOK, rs.overlay())
}

// actionHandlers returns the actions a remote client can run on msg. Copying
// happens on the client, so its handler only closes the sheet.
func (a *API) actionHandlers(rs *remoteSession, msg session.Message) session.ActionHandlers {
	return session.ActionHandlers{
		session.ActionCopy: func(context.Context) error {
			return nil
		},
		session.ActionThreadReply: func(context.Context) error {
			rs.OpenThread(msg)
			return nil
		},
	}
}

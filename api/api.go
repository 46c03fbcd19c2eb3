package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GetStream/channel-session/api/validator"
	"github.com/GetStream/channel-session/session"
)

// API provides the REST endpoints for the application.
type API struct {
	Logger *slog.Logger
	Drafts *session.DraftStore
	Chat   session.ChatClient
	Val    *validator.Validator

	once     sync.Once
	mux      *http.ServeMux
	sessions *registry
}

func (a *API) setupRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /drafts", a.listDrafts)
	mux.HandleFunc("GET /channels/{channelID}", a.getChannel)
	mux.HandleFunc("GET /channels/{channelID}/messages", a.listMessages)
	mux.HandleFunc("GET /channels/{channelID}/draft", a.getDraft)
	mux.HandleFunc("PUT /channels/{channelID}/draft", a.putDraft)
	mux.HandleFunc("DELETE /channels/{channelID}/draft", a.deleteDraft)
	mux.HandleFunc("GET /channels/{channelID}/messages/{messageID}/scroll-index", a.scrollIndex)

	mux.HandleFunc("POST /sessions", a.openSession)
	mux.HandleFunc("GET /sessions/{sessionID}", a.getSession)
	mux.HandleFunc("DELETE /sessions/{sessionID}", a.closeSession)
	mux.HandleFunc("PUT /sessions/{sessionID}/text", a.changeText)
	mux.HandleFunc("POST /sessions/{sessionID}/send", a.sendMessage)
	mux.HandleFunc("POST /sessions/{sessionID}/blur", a.blur)
	mux.HandleFunc("POST /sessions/{sessionID}/thread", a.openThread)
	mux.HandleFunc("POST /sessions/{sessionID}/scroll", a.scrollToMessage)
	mux.HandleFunc("POST /sessions/{sessionID}/reactions", a.createReaction)
	mux.HandleFunc("GET /sessions/{sessionID}/overlay", a.getOverlay)
	mux.HandleFunc("DELETE /sessions/{sessionID}/overlay", a.dismissOverlay)
	mux.HandleFunc("POST /sessions/{sessionID}/overlay/dismissed", a.overlayDismissed)
	mux.HandleFunc("POST /sessions/{sessionID}/overlay/action-sheet", a.openActionSheet)
	mux.HandleFunc("POST /sessions/{sessionID}/overlay/reaction-picker", a.openReactionPicker)
	mux.HandleFunc("POST /sessions/{sessionID}/overlay/actions/{action}", a.runAction)

	a.mux = mux
	a.sessions = newRegistry()
	if a.Val == nil {
		a.Val = validator.New()
	}
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)
	a.mux.ServeHTTP(w, r)
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error string `json:"error"`
	}
	a.Logger.Error("Error", "error", err.Error())
	a.respond(w, status, response{Error: msg})
}

// decodeBody decodes the JSON request body into dst and validates it. It
// writes the error response and returns false when the body is unusable.
func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return false
	}
	return a.validateBody(w, dst)
}

func (a *API) validateBody(w http.ResponseWriter, s any) bool {
	errs := a.Val.ValidateStruct(s)
	type response struct {
		Errors []validator.ValidationError `json:"errors"`
	}

	if len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, &response{
			Errors: errs,
		})
		return false
	}
	return true
}

// channelID returns the validated channelID path value.
func (a *API) channelID(w http.ResponseWriter, r *http.Request) (session.ChannelID, bool) {
	id := r.PathValue("channelID")
	if errs := a.Val.Validate(id, "id"); len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, map[string]string{"error": "Invalid channel id"})
		return "", false
	}
	return session.ChannelID(id), true
}

// userID returns the validated user_id query parameter.
func (a *API) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("user_id")
	if errs := a.Val.Validate(id, "id"); len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, map[string]string{"error": "Invalid user id"})
		return "", false
	}
	return id, true
}

func (a *API) getChannel(w http.ResponseWriter, r *http.Request) {
	type response struct {
		ID      session.ChannelID `json:"id"`
		Name    string            `json:"name"`
		Members []session.User    `json:"members"`
		Preview string            `json:"preview,omitempty"`
	}

	id, ok := a.channelID(w, r)
	if !ok {
		return
	}
	me, ok := a.userID(w, r)
	if !ok {
		return
	}

	ch, err := a.Chat.Channel(r.Context(), session.MessagingType, id)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not get channel")
		return
	}
	msgs, err := a.Chat.Messages(r.Context(), id)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list messages")
		return
	}

	members := session.OtherMembers(ch, me)
	if members == nil {
		members = []session.User{}
	}
	preview, _ := session.ConversationPreview(msgs, me)
	a.respond(w, http.StatusOK, response{
		ID:      ch.ID,
		Name:    session.ChannelDisplayName(ch, me),
		Members: members,
		Preview: preview,
	})
}

func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	type (
		row struct {
			session.Message
			GroupStyle  string `json:"group_style"`
			ShowHeader  bool   `json:"show_header"`
			ShowUserBar bool   `json:"show_user_bar"`
		}
		response struct {
			Messages []row `json:"messages"`
		}
	)

	id, ok := a.channelID(w, r)
	if !ok {
		return
	}
	msgs, err := a.Chat.Messages(r.Context(), id)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list messages")
		return
	}

	styles := session.GroupStyles(msgs)
	rows := make([]row, len(msgs))
	for i, m := range msgs {
		rows[i] = row{
			Message:     m,
			GroupStyle:  styles[i],
			ShowHeader:  session.ShowHeader(m),
			ShowUserBar: session.ShowUserBar(m, styles[i]),
		}
	}
	a.respond(w, http.StatusOK, response{Messages: rows})
}

func (a *API) listDrafts(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Drafts []session.Draft `json:"drafts"`
	}

	drafts := a.Drafts.List(r.Context())
	if drafts == nil {
		drafts = []session.Draft{}
	}
	a.respond(w, http.StatusOK, response{Drafts: drafts})
}

func (a *API) getDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := a.channelID(w, r)
	if !ok {
		return
	}

	d, ok := a.Drafts.Get(r.Context(), id)
	if !ok {
		a.respondError(w, http.StatusNotFound, session.ErrNoDraft, "No draft")
		return
	}
	a.respond(w, http.StatusOK, d)
}

func (a *API) putDraft(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Text string `json:"text"`
	}

	id, ok := a.channelID(w, r)
	if !ok {
		return
	}
	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	a.Drafts.Set(r.Context(), id, body.Text)

	d, ok := a.Drafts.Get(r.Context(), id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	a.respond(w, http.StatusOK, d)
}

func (a *API) deleteDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := a.channelID(w, r)
	if !ok {
		return
	}
	a.Drafts.Clear(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) scrollIndex(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Index int `json:"index"`
	}

	id, ok := a.channelID(w, r)
	if !ok {
		return
	}
	msgs, err := a.Chat.Messages(r.Context(), id)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list messages")
		return
	}

	idx, ok := session.ScrollIndex(msgs, r.PathValue("messageID"))
	if !ok {
		a.respondError(w, http.StatusNotFound, session.ErrIndexNotFound, "Message not loaded")
		return
	}
	a.respond(w, http.StatusOK, response{Index: idx})
}

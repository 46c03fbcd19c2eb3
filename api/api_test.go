package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GetStream/channel-session/api/validator"
	"github.com/GetStream/channel-session/session"
	"github.com/neilotoole/slogt"
)

func TestAPI_drafts(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		req        string
		existing   map[session.ChannelID]string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "GetMissing",
			method:     "GET",
			path:       "/channels/ch1/draft",
			wantStatus: 404,
			wantBody: `{
				"error": "No draft"
			}`,
		},
		{
			name:       "Get",
			method:     "GET",
			path:       "/channels/ch1/draft",
			existing:   map[session.ChannelID]string{"ch1": "hello"},
			wantStatus: 200,
			wantBody: `{
				"channel_id": "ch1",
				"text": "hello",
				"updated_at": "2024-01-01T00:00:00Z"
			}`,
		},
		{
			name:       "PutBlankDeletes",
			method:     "PUT",
			path:       "/channels/ch1/draft",
			req:        `{"text": "   "}`,
			existing:   map[session.ChannelID]string{"ch1": "hello"},
			wantStatus: 204,
		},
		{
			name:       "PutInvalidJSON",
			method:     "PUT",
			path:       "/channels/ch1/draft",
			req:        `not json`,
			wantStatus: 400,
			wantBody: `{
				"error": "Could not decode request body"
			}`,
		},
		{
			name:       "InvalidChannelID",
			method:     "GET",
			path:       "/channels/drafts:ch1/draft",
			wantStatus: 400,
			wantBody: `{
				"error": "Invalid channel id"
			}`,
		},
		{
			name:       "Delete",
			method:     "DELETE",
			path:       "/channels/ch1/draft",
			existing:   map[session.ChannelID]string{"ch1": "hello"},
			wantStatus: 204,
		},
		{
			name:       "DeleteMissing",
			method:     "DELETE",
			path:       "/channels/ch1/draft",
			wantStatus: 204,
		},
		{
			name:   "List",
			method: "GET",
			path:   "/drafts",
			existing: map[session.ChannelID]string{
				"ch1": "hello",
			},
			wantStatus: 200,
			wantBody: `{
				"drafts": [
					{
						"channel_id": "ch1",
						"text": "hello",
						"updated_at": "2024-01-01T00:00:00Z"
					}
				]
			}`,
		},
		{
			name:       "ListEmpty",
			method:     "GET",
			path:       "/drafts",
			wantStatus: 200,
			wantBody: `{
				"drafts": []
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := session.NewMemoryDrafts()
			for id, text := range tt.existing {
				err := backend.SaveDraft(context.Background(), session.Draft{
					ChannelID: id,
					Text:      text,
					UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				})
				if err != nil {
					t.Fatal(err)
				}
			}
			api := &API{
				Logger: slogt.New(t),
				Drafts: session.NewDraftStore(backend, slogt.New(t)),
				Chat:   &testchat{T: t},
				Val:    validator.New(),
			}

			srv := httptest.NewServer(api)
			defer srv.Close()

			resp := do(t, srv, tt.method, tt.path, tt.req)
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			if tt.wantBody != "" {
				checkBody(t, resp, tt.wantBody)
			}
		})
	}
}

func TestAPI_putDraft(t *testing.T) {
	store := session.NewDraftStore(session.NewMemoryDrafts(), slogt.New(t))
	api := &API{
		Logger: slogt.New(t),
		Drafts: store,
		Chat:   &testchat{T: t},
	}
	srv := httptest.NewServer(api)
	defer srv.Close()

	resp := do(t, srv, "PUT", "/channels/ch1/draft", `{"text": "hello"}`)
	checkStatus(t, resp.StatusCode, 200)

	d, ok := store.Get(context.Background(), "ch1")
	if !ok || d.Text != "hello" {
		t.Errorf("Got draft %q (ok %v), want hello", d.Text, ok)
	}
}

func TestAPI_draftStorageError(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))
	api := &API{
		Logger: logger,
		Drafts: session.NewDraftStore(&failingDrafts{}, logger),
		Chat:   &testchat{T: t},
	}
	srv := httptest.NewServer(api)
	defer srv.Close()

	resp := do(t, srv, "GET", "/channels/ch1/draft", "")
	checkStatus(t, resp.StatusCode, 404)
	checkLog(t, buf, "Could not load draft")
}

func TestAPI_scrollIndex(t *testing.T) {
	tests := []struct {
		name       string
		messageID  string
		messages   func(t *testing.T, id session.ChannelID) ([]session.Message, error)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "Found",
			messageID:  "B",
			messages:   abcMessages,
			wantStatus: 200,
			wantBody: `{
				"index": 1
			}`,
		},
		{
			name:       "NotFound",
			messageID:  "Z",
			messages:   abcMessages,
			wantStatus: 404,
			wantBody: `{
				"error": "Message not loaded"
			}`,
		},
		{
			name:      "ChatError",
			messageID: "B",
			messages: func(t *testing.T, id session.ChannelID) ([]session.Message, error) {
				return nil, errors.New("something went wrong")
			},
			wantStatus: 500,
			wantBody: `{
				"error": "Could not list messages"
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &API{
				Logger: slogt.New(t),
				Drafts: session.NewDraftStore(session.NewMemoryDrafts(), slogt.New(t)),
				Chat:   &testchat{T: t, messages: tt.messages},
			}
			srv := httptest.NewServer(api)
			defer srv.Close()

			resp := do(t, srv, "GET", "/channels/ch1/messages/"+tt.messageID+"/scroll-index", "")
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

func TestAPI_sessionComposer(t *testing.T) {
	ctx := context.Background()
	store := session.NewDraftStore(session.NewMemoryDrafts(), slogt.New(t))
	store.Set(ctx, "ch1", "hello")
	chat := &testchat{
		T: t,
		channel: func(t *testing.T, channelType string, id session.ChannelID) (session.Channel, error) {
			return session.Channel{ID: id, Type: channelType, Name: "Team Chat", Initialized: true}, nil
		},
		sendMessage: func(t *testing.T, id session.ChannelID, msg session.Message) (session.Message, error) {
			if msg.Text != "hello world" {
				t.Errorf("Got text %q, want %q", msg.Text, "hello world")
			}
			msg.ID = "m1"
			msg.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			return msg, nil
		},
	}
	api := &API{
		Logger: slogt.New(t),
		Drafts: store,
		Chat:   chat,
	}
	srv := httptest.NewServer(api)
	defer srv.Close()

	var opened struct {
		ID          string `json:"id"`
		Text        string `json:"text"`
		Placeholder string `json:"placeholder"`
	}
	resp := do(t, srv, "POST", "/sessions", `{"channel_id": "ch1"}`)
	checkStatus(t, resp.StatusCode, 201)
	decode(t, resp, &opened)
	if opened.Text != "hello" {
		t.Errorf("Got composer text %q, want hello", opened.Text)
	}
	if opened.Placeholder != "Message #team_chat" {
		t.Errorf("Got placeholder %q, want %q", opened.Placeholder, "Message #team_chat")
	}

	resp = do(t, srv, "PUT", "/sessions/"+opened.ID+"/text", `{"text": "hello world"}`)
	checkStatus(t, resp.StatusCode, 202)

	resp = do(t, srv, "POST", "/sessions/"+opened.ID+"/send", `{"user_id": "u1"}`)
	checkStatus(t, resp.StatusCode, 201)
	checkBody(t, resp, `{
		"id": "m1",
		"channel_id": "ch1",
		"text": "hello world",
		"user": {"id": "u1", "name": ""},
		"created_at": "2024-01-01T00:00:00Z",
		"reply_count": 0,
		"attachments": 0,
		"reactions": null
	}`)

	resp = do(t, srv, "POST", "/sessions/"+opened.ID+"/send", `{"user_id": "u1"}`)
	checkStatus(t, resp.StatusCode, 400)
	checkBody(t, resp, `{"error": "Message is empty"}`)

	resp = do(t, srv, "DELETE", "/sessions/"+opened.ID, "")
	checkStatus(t, resp.StatusCode, 204)

	resp = do(t, srv, "POST", "/sessions", `{"channel_id": "ch1"}`)
	checkStatus(t, resp.StatusCode, 201)
	decode(t, resp, &opened)
	if opened.Text != "" {
		t.Errorf("Got composer text %q after send, want empty", opened.Text)
	}
}

func TestAPI_openSessionErrors(t *testing.T) {
	tests := []struct {
		name       string
		req        string
		chat       *testchat
		wantStatus int
		wantBody   string
		wantField  string
	}{
		{
			name:       "MissingChannel",
			req:        `{}`,
			wantStatus: 400,
			wantField:  "channel_id",
		},
		{
			name: "ChatError",
			req:  `{"channel_id": "ch1"}`,
			chat: &testchat{
				channel: func(t *testing.T, channelType string, id session.ChannelID) (session.Channel, error) {
					return session.Channel{}, errors.New("something went wrong")
				},
			},
			wantStatus: 500,
			wantBody: `{
				"error": "Could not open channel"
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.chat == nil {
				tt.chat = &testchat{}
			}
			tt.chat.T = t
			api := &API{
				Logger: slogt.New(t),
				Drafts: session.NewDraftStore(session.NewMemoryDrafts(), slogt.New(t)),
				Chat:   tt.chat,
			}
			srv := httptest.NewServer(api)
			defer srv.Close()

			resp := do(t, srv, "POST", "/sessions", tt.req)
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			if tt.wantField == "" {
				checkBody(t, resp, tt.wantBody)
				return
			}
			var body struct {
				Errors []validator.ValidationError `json:"errors"`
			}
			decode(t, resp, &body)
			if len(body.Errors) != 1 || body.Errors[0].Field != tt.wantField {
				t.Errorf("Got validation errors %+v, want one for %s", body.Errors, tt.wantField)
			}
		})
	}
}

func TestAPI_sessionOverlay(t *testing.T) {
	chat := &testchat{
		T:        t,
		messages: abcMessages,
		sendReaction: func(t *testing.T, r session.Reaction) (session.Reaction, error) {
			r.ID = "r1"
			r.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			return r, nil
		},
	}
	api := &API{
		Logger: slogt.New(t),
		Drafts: session.NewDraftStore(session.NewMemoryDrafts(), slogt.New(t)),
		Chat:   chat,
	}
	srv := httptest.NewServer(api)
	defer srv.Close()

	id := openSession(t, srv, "ch1")
	base := "/sessions/" + id

	steps := []struct {
		name       string
		method     string
		path       string
		req        string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "Closed",
			method:     "GET",
			path:       base + "/overlay",
			wantStatus: 200,
			wantBody: `{
				"kind": "closed",
				"action_sheet_visible": false,
				"reaction_picker_visible": false
			}`,
		},
		{
			name:       "RunWithoutSheet",
			method:     "POST",
			path:       base + "/overlay/actions/copy",
			wantStatus: 409,
			wantBody: `{
				"error": "No action sheet open"
			}`,
		},
		{
			name:       "LongPress",
			method:     "POST",
			path:       base + "/overlay/action-sheet",
			req:        `{"message_id": "B"}`,
			wantStatus: 200,
			wantBody: `{
				"kind": "action_sheet",
				"message_id": "B",
				"actions": ["copy", "thread_reply"],
				"action_sheet_visible": true,
				"reaction_picker_visible": false
			}`,
		},
		{
			name:       "UnknownMessage",
			method:     "POST",
			path:       base + "/overlay/action-sheet",
			req:        `{"message_id": "Z"}`,
			wantStatus: 404,
			wantBody: `{
				"error": "Message not found"
			}`,
		},
		{
			name:       "UnknownAction",
			method:     "POST",
			path:       base + "/overlay/actions/delete",
			wantStatus: 400,
			wantBody: `{
				"error": "Unknown action"
			}`,
		},
		{
			name:       "ReactionPickerReplacesSheet",
			method:     "POST",
			path:       base + "/overlay/reaction-picker",
			req:        `{"message_id": "B"}`,
			wantStatus: 200,
			wantBody: `{
				"kind": "reaction_picker",
				"message_id": "B",
				"action_sheet_visible": false,
				"reaction_picker_visible": true
			}`,
		},
		{
			name:       "React",
			method:     "POST",
			path:       base + "/reactions",
			req:        `{"message_id": "B", "type": "like", "user_id": "u1"}`,
			wantStatus: 201,
			wantBody: `{
				"id": "r1",
				"message_id": "B",
				"user_id": "u1",
				"type": "like",
				"score": 1,
				"created_at": "2024-01-01T00:00:00Z"
			}`,
		},
		{
			name:       "ClosedAfterReaction",
			method:     "GET",
			path:       base + "/overlay",
			wantStatus: 200,
			wantBody: `{
				"kind": "closed",
				"action_sheet_visible": false,
				"reaction_picker_visible": false
			}`,
		},
		{
			name:       "LongPressAgain",
			method:     "POST",
			path:       base + "/overlay/action-sheet",
			req:        `{"message_id": "A"}`,
			wantStatus: 200,
			wantBody: `{
				"kind": "action_sheet",
				"message_id": "A",
				"actions": ["copy", "thread_reply"],
				"action_sheet_visible": true,
				"reaction_picker_visible": false
			}`,
		},
		{
			name:       "Blur",
			method:     "POST",
			path:       base + "/blur",
			wantStatus: 200,
			wantBody: `{
				"kind": "closed",
				"action_sheet_visible": false,
				"reaction_picker_visible": false
			}`,
		},
		{
			name:       "Scroll",
			method:     "POST",
			path:       base + "/scroll",
			req:        `{"message_id": "A"}`,
			wantStatus: 200,
			wantBody: `{
				"index": 2
			}`,
		},
		{
			name:       "ScrollMissing",
			method:     "POST",
			path:       base + "/scroll",
			req:        `{"message_id": "Z"}`,
			wantStatus: 404,
			wantBody: `{
				"error": "Message not loaded"
			}`,
		},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			resp := do(t, srv, step.method, step.path, step.req)
			checkStatus(t, resp.StatusCode, step.wantStatus)
			checkBody(t, resp, step.wantBody)
		})
	}
}

func TestAPI_threadReplyAction(t *testing.T) {
	api := &API{
		Logger: slogt.New(t),
		Drafts: session.NewDraftStore(session.NewMemoryDrafts(), slogt.New(t)),
		Chat:   &testchat{T: t, messages: abcMessages},
	}
	srv := httptest.NewServer(api)
	defer srv.Close()

	id := openSession(t, srv, "ch1")
	resp := do(t, srv, "POST", "/sessions/"+id+"/overlay/action-sheet", `{"message_id": "C"}`)
	checkStatus(t, resp.StatusCode, 200)

	resp = do(t, srv, "POST", "/sessions/"+id+"/overlay/actions/thread_reply", "")
	checkStatus(t, resp.StatusCode, 200)
	checkBody(t, resp, `{
		"kind": "closed",
		"action_sheet_visible": false,
		"reaction_picker_visible": false
	}`)

	resp = do(t, srv, "POST", "/sessions/"+id+"/thread", `{"message_id": "C"}`)
	checkStatus(t, resp.StatusCode, 200)
	checkBody(t, resp, `{
		"screen": "ThreadScreen",
		"params": {"channelId": "ch1", "threadId": "C"}
	}`)
}

func TestAPI_unknownSession(t *testing.T) {
	api := &API{
		Logger: slogt.New(t),
		Drafts: session.NewDraftStore(session.NewMemoryDrafts(), slogt.New(t)),
		Chat:   &testchat{T: t},
	}
	srv := httptest.NewServer(api)
	defer srv.Close()

	for _, path := range []string{"/sessions/nope/overlay", "/sessions/nope"} {
		method := "GET"
		if path == "/sessions/nope" {
			method = "DELETE"
		}
		resp := do(t, srv, method, path, "")
		checkStatus(t, resp.StatusCode, 404)
		checkBody(t, resp, `{"error": "Session not found"}`)
	}
}

func abcMessages(t *testing.T, id session.ChannelID) ([]session.Message, error) {
	return []session.Message{
		{ID: "A", ChannelID: id, Text: "first"},
		{ID: "B", ChannelID: id, Text: "second"},
		{ID: "C", ChannelID: id, Text: "third"},
	}, nil
}

type testchat struct {
	T            *testing.T
	channel      func(t *testing.T, channelType string, id session.ChannelID) (session.Channel, error)
	messages     func(t *testing.T, id session.ChannelID) ([]session.Message, error)
	sendMessage  func(t *testing.T, id session.ChannelID, msg session.Message) (session.Message, error)
	sendReaction func(t *testing.T, r session.Reaction) (session.Reaction, error)
}

func (c *testchat) Channel(_ context.Context, channelType string, id session.ChannelID) (session.Channel, error) {
	if c.channel == nil {
		return session.Channel{ID: id, Type: channelType, Initialized: true}, nil
	}
	return c.channel(c.T, channelType, id)
}

func (c *testchat) Messages(_ context.Context, id session.ChannelID) ([]session.Message, error) {
	return c.messages(c.T, id)
}

func (c *testchat) SendMessage(_ context.Context, id session.ChannelID, msg session.Message) (session.Message, error) {
	return c.sendMessage(c.T, id, msg)
}

func (c *testchat) SendReaction(_ context.Context, r session.Reaction) (session.Reaction, error) {
	return c.sendReaction(c.T, r)
}

type failingDrafts struct{}

func (failingDrafts) LoadDraft(context.Context, session.ChannelID) (session.Draft, error) {
	return session.Draft{}, errors.New("connection refused")
}

func (failingDrafts) SaveDraft(context.Context, session.Draft) error {
	return errors.New("connection refused")
}

func (failingDrafts) DeleteDraft(context.Context, session.ChannelID) error {
	return errors.New("connection refused")
}

func (failingDrafts) ListDrafts(context.Context) ([]session.Draft, error) {
	return nil, errors.New("connection refused")
}

func openSession(t *testing.T, srv *httptest.Server, channelID string) string {
	t.Helper()
	var opened struct {
		ID string `json:"id"`
	}
	resp := do(t, srv, "POST", "/sessions", `{"channel_id": "`+channelID+`"}`)
	checkStatus(t, resp.StatusCode, 201)
	decode(t, resp, &opened)
	return opened.ID
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("Could not decode JSON: %v", err)
	}
}

func checkStatus(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("Got HTTP status %d, want %d", got, want)
	}
}

func checkBody(t *testing.T, resp *http.Response, want string) {
	t.Helper()
	gotBody := normalizeJSON(t, resp.Body)
	wantBody := normalizeJSON(t, bytes.NewReader([]byte(want)))
	if gotBody != wantBody {
		t.Errorf("Body does not match\nGot\n  %s\n\nWant\n  %s", gotBody, wantBody)
	}
}

func checkLog(t *testing.T, buffer *bytes.Buffer, want string) {
	t.Helper()

	if s := buffer.String(); want != "" && !strings.Contains(s, want) {
		t.Errorf("Log does not contain  %s\n", want)
	}
}

// normalizeJSON re-encodes r so that key order and whitespace do not matter.
func normalizeJSON(t *testing.T, r io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Could not read JSON: %v", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("Could not parse JSON %q: %v", b, err)
	}
	out, err := json.MarshalIndent(v, "  ", "  ")
	if err != nil {
		t.Fatalf("Could not indent JSON: %v", err)
	}
	return strings.TrimSpace(string(out))
}

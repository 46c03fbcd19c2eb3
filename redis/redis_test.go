package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/GetStream/channel-session/session"
	"github.com/google/go-cmp/cmp"
)

func connect(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	r, err := Connect(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		keys, _ := r.cli.Keys(ctx, draftPrefix+"*").Result()
		for _, k := range keys {
			r.cli.Del(ctx, k)
		}
		r.Close()
	})
	return r
}

func TestDraftModel(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 30, 0, 5, time.UTC)
	d := session.Draft{ChannelID: "ch1", Text: "hello", UpdatedAt: at}

	got := newDraft(d).SessionDraft()
	if diff := cmp.Diff(d, got); diff != "" {
		t.Errorf("Draft mismatch (-want +got):\n%s", diff)
	}
}

func TestRedis_Drafts(t *testing.T) {
	r := connect(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := r.LoadDraft(ctx, "ch1"); !errors.Is(err, session.ErrNoDraft) {
		t.Fatalf("Got error %v, want ErrNoDraft", err)
	}

	for i, id := range []session.ChannelID{"ch1", "ch2"} {
		err := r.SaveDraft(ctx, session.Draft{
			ChannelID: id,
			Text:      "draft " + string(id),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := r.LoadDraft(ctx, "ch1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "draft ch1" {
		t.Errorf("Got text %q, want %q", got.Text, "draft ch1")
	}

	list, err := r.ListDrafts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []session.Draft{
		{ChannelID: "ch2", Text: "draft ch2", UpdatedAt: base.Add(time.Minute)},
		{ChannelID: "ch1", Text: "draft ch1", UpdatedAt: base},
	}
	if diff := cmp.Diff(want, list); diff != "" {
		t.Errorf("ListDrafts() mismatch (-want +got):\n%s", diff)
	}

	if err := r.DeleteDraft(ctx, "ch1"); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteDraft(ctx, "ch1"); err != nil {
		t.Errorf("Second delete: %v", err)
	}
	if _, err := r.LoadDraft(ctx, "ch1"); !errors.Is(err, session.ErrNoDraft) {
		t.Errorf("Got error %v after delete, want ErrNoDraft", err)
	}
}

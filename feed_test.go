package flume_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/flume"
	flerrs "github.com/jdholdren/flume/errors"
)

// fakeRequester records every request descriptor it's handed and plays back
// a canned response.
type fakeRequester struct {
	reqs []*flume.Request
	resp any
	err  error
}

func (f *fakeRequester) Do(_ context.Context, req *flume.Request, out any) error {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return f.err
	}
	if f.resp == nil || out == nil {
		return nil
	}

	b, err := json.Marshal(f.resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (f *fakeRequester) last(t *testing.T) *flume.Request {
	t.Helper()
	require.NotEmpty(t, f.reqs)
	return f.reqs[len(f.reqs)-1]
}

func newTestClient(t *testing.T, req *fakeRequester) *flume.Client {
	t.Helper()
	client, err := flume.NewClient(flume.ClientConfig{
		APIKey:    "key",
		AppID:     "app1",
		UserID:    "user:me",
		Requester: req,
	})
	require.NoError(t, err)
	return client
}

func newTestFeed(t *testing.T, req *fakeRequester) *flume.Feed {
	t.Helper()
	feed, err := newTestClient(t, req).Feed("user", "42", "tok")
	require.NoError(t, err)
	return feed
}

func TestFeedConstruction_Identity(t *testing.T) {
	fake := &fakeRequester{}
	client := newTestClient(t, fake)

	feed, err := client.Feed("user", "42", "tok")
	require.NoError(t, err)

	assert.Equal(t, "user:42", feed.ID())
	assert.Equal(t, "user", feed.Slug())
	assert.Equal(t, "42", feed.UserID())

	// Repeated construction derives the very same identity and signature.
	again, err := client.Feed("user", "42", "tok")
	require.NoError(t, err)
	assert.Equal(t, feed.ID(), again.ID())

	_, err = feed.Get(context.Background(), nil)
	require.NoError(t, err)
	_, err = again.Get(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, fake.reqs, 2)
	assert.Equal(t, "user42 tok", fake.reqs[0].Signature)
	assert.Equal(t, fake.reqs[0].Signature, fake.reqs[1].Signature)
}

func TestFeedConstruction_Failures(t *testing.T) {
	client := newTestClient(t, &fakeRequester{})

	tests := []struct {
		name   string
		slug   string
		userID string
		token  string
	}{
		{name: "empty slug", slug: "", userID: "42", token: "tok"},
		{name: "empty user id", slug: "user", userID: "", token: "tok"},
		{name: "slug with colon", slug: "user:42", userID: "42", token: "tok"},
		{name: "empty token", slug: "user", userID: "42", token: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Feed(tt.slug, tt.userID, tt.token)
			assert.True(t, flerrs.IsValidation(err))
		})
	}
}

func TestAddActivity(t *testing.T) {
	fake := &fakeRequester{
		resp: map[string]any{
			"activities": []map[string]any{
				{"id": "served-1", "actor": "user:1", "verb": "post", "object": "note:1"},
			},
		},
	}
	feed := newTestFeed(t, fake)

	got, err := feed.AddActivity(context.Background(), flume.Activity{
		Actor:  "user:1",
		Verb:   "post",
		Object: "note:1",
	})
	require.NoError(t, err)

	assert.Equal(t, "served-1", got.ID)
	assert.Equal(t, "user:1", got.Actor)
	assert.Equal(t, "post", got.Verb)
	assert.Equal(t, "note:1", got.Object)

	req := fake.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "feed/user/42/", req.Path)
}

func TestAddActivity_ActorAutoFilled(t *testing.T) {
	fake := &fakeRequester{resp: map[string]any{"activities": []map[string]any{{"id": "x"}}}}
	feed := newTestFeed(t, fake)

	_, err := feed.AddActivity(context.Background(), flume.Activity{Verb: "post", Object: "note:1"})
	require.NoError(t, err)

	b, err := json.Marshal(fake.last(t).Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"activities":[{"actor":"user:me","verb":"post","object":"note:1"}]}`, string(b))
}

func TestAddActivities_Validation(t *testing.T) {
	fake := &fakeRequester{}
	feed := newTestFeed(t, fake)

	_, err := feed.AddActivities(context.Background())
	assert.True(t, flerrs.IsValidation(err))

	_, err = feed.AddActivities(context.Background(), flume.Activity{Verb: "post"})
	assert.True(t, flerrs.IsValidation(err))

	// Nothing may have been sent.
	assert.Empty(t, fake.reqs)
}

func TestRemoveActivity_Modes(t *testing.T) {
	tests := []struct {
		name        string
		ref         flume.ActivityRef
		wantForeign bool
	}{
		{name: "by id", ref: flume.ByID("abc")},
		{name: "by foreign id", ref: flume.ByForeignID("abc"), wantForeign: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeRequester{resp: map[string]any{"removed": "abc"}}
			feed := newTestFeed(t, fake)

			got, err := feed.RemoveActivity(context.Background(), tt.ref)
			require.NoError(t, err)
			assert.Equal(t, "abc", got.Removed)

			req := fake.last(t)
			assert.Equal(t, http.MethodDelete, req.Method)
			assert.Equal(t, "feed/user/42/abc/", req.Path)
			if tt.wantForeign {
				assert.Equal(t, "1", req.Query.Get("foreign_id"))
			} else {
				assert.False(t, req.Query.Has("foreign_id"))
			}
		})
	}
}

func TestFollow_Body(t *testing.T) {
	fake := &fakeRequester{}
	feed := newTestFeed(t, fake)

	_, err := feed.Follow(context.Background(), "user", flume.UserID("2"), flume.WithActivityCopyLimit(5))
	require.NoError(t, err)

	req := fake.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "feed/user/42/following/", req.Path)

	b, err := json.Marshal(req.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"target":"user:2","activity_copy_limit":5}`, string(b))
}

func TestFollow_OmitsCopyLimitWhenUnset(t *testing.T) {
	fake := &fakeRequester{}
	feed := newTestFeed(t, fake)

	_, err := feed.Follow(context.Background(), "user", flume.UserID("2"))
	require.NoError(t, err)

	b, err := json.Marshal(fake.last(t).Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"target":"user:2"}`, string(b))
}

func TestFollow_TargetFromFeed(t *testing.T) {
	fake := &fakeRequester{}
	client := newTestClient(t, fake)

	feed, err := client.Feed("timeline", "7", "tok")
	require.NoError(t, err)
	target, err := client.Feed("user", "2", "tok2")
	require.NoError(t, err)

	_, err = feed.Follow(context.Background(), "user", target)
	require.NoError(t, err)

	b, err := json.Marshal(fake.last(t).Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"target":"user:2"}`, string(b))
}

func TestFollow_ValidatesBeforeSending(t *testing.T) {
	fake := &fakeRequester{}
	feed := newTestFeed(t, fake)

	tests := []struct {
		name string
		call func() error
	}{
		{
			name: "bad target slug",
			call: func() error {
				_, err := feed.Follow(context.Background(), "us:er", flume.UserID("2"))
				return err
			},
		},
		{
			name: "bad target user",
			call: func() error {
				_, err := feed.Follow(context.Background(), "user", flume.UserID(""))
				return err
			},
		},
		{
			name: "nil target",
			call: func() error {
				_, err := feed.Follow(context.Background(), "user", nil)
				return err
			},
		},
		{
			name: "negative copy limit",
			call: func() error {
				_, err := feed.Follow(context.Background(), "user", flume.UserID("2"), flume.WithActivityCopyLimit(-1))
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, flerrs.IsValidation(tt.call()))
		})
	}
	assert.Empty(t, fake.reqs)
}

func TestUnfollow(t *testing.T) {
	fake := &fakeRequester{}
	feed := newTestFeed(t, fake)

	_, err := feed.Unfollow(context.Background(), "user", flume.UserID("2"))
	require.NoError(t, err)

	req := fake.last(t)
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "feed/user/42/following/user:2/", req.Path)
	assert.False(t, req.Query.Has("keep_history"))

	_, err = feed.Unfollow(context.Background(), "user", flume.UserID("2"), flume.KeepHistory())
	require.NoError(t, err)
	assert.Equal(t, "1", fake.last(t).Query.Get("keep_history"))
}

func TestFollowingAndFollowers(t *testing.T) {
	fake := &fakeRequester{
		resp: map[string]any{
			"results": []map[string]any{
				{"feed_id": "timeline:7", "target_id": "user:2"},
			},
		},
	}
	feed := newTestFeed(t, fake)

	got, err := feed.Following(context.Background(), &flume.FollowListOptions{Filter: []string{"user:2", "user:3"}})
	require.NoError(t, err)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "timeline:7", got.Results[0].FeedID)
	assert.Equal(t, "user:2", got.Results[0].TargetID)

	req := fake.last(t)
	assert.Equal(t, "feed/user/42/following/", req.Path)
	assert.Equal(t, "user:2,user:3", req.Query.Get("filter"))

	_, err = feed.Followers(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "feed/user/42/followers/", fake.last(t).Path)
}

func TestGet_ComposesQuery(t *testing.T) {
	fake := &fakeRequester{resp: map[string]any{"results": []any{}, "next": ""}}
	feed := newTestFeed(t, fake)

	_, err := feed.Get(context.Background(), &flume.GetOptions{
		Pagination: flume.Pagination{Limit: 10, IDLT: "cursor-1"},
		MarkRead:   flume.MarkIDs("a", "b"),
		MarkSeen:   flume.MarkCurrent(),
	})
	require.NoError(t, err)

	req := fake.last(t)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "feed/user/42/", req.Path)
	assert.Equal(t, "10", req.Query.Get("limit"))
	assert.Equal(t, "cursor-1", req.Query.Get("id_lt"))
	assert.Equal(t, "a,b", req.Query.Get("mark_read"))
	assert.Equal(t, "current", req.Query.Get("mark_seen"))
}

func TestGet_MarkReadShapes(t *testing.T) {
	tests := []struct {
		name string
		opt  flume.MarkOption
		want string
	}{
		{name: "all", opt: flume.MarkAll(), want: "true"},
		{name: "current", opt: flume.MarkCurrent(), want: "current"},
		{name: "ids joined", opt: flume.MarkIDs("a", "b"), want: "a,b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeRequester{}
			feed := newTestFeed(t, fake)

			_, err := feed.Get(context.Background(), &flume.GetOptions{MarkRead: tt.opt})
			require.NoError(t, err)
			assert.Equal(t, tt.want, fake.last(t).Query.Get("mark_read"))
		})
	}
}

func TestGet_EnrichEndpointSwitch(t *testing.T) {
	fake := &fakeRequester{}
	feed := newTestFeed(t, fake)

	_, err := feed.Get(context.Background(), &flume.GetOptions{
		Enrichment: flume.Enrichment{WithReactionCounts: true},
	})
	require.NoError(t, err)

	req := fake.last(t)
	assert.Equal(t, "enrich/feed/user/42/", req.Path)
	assert.Equal(t, "true", req.Query.Get("with_reaction_counts"))
	assert.False(t, req.Query.Has("withReactionCounts"))
	assert.False(t, req.Query.Has("enrich"))

	// An explicit enrich=false forces the plain endpoint even with
	// reaction options present.
	enrich := false
	_, err = feed.Get(context.Background(), &flume.GetOptions{
		Enrichment: flume.Enrichment{Enrich: &enrich, WithReactionCounts: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "feed/user/42/", fake.last(t).Path)
}

func TestGet_NotificationCounts(t *testing.T) {
	fake := &fakeRequester{
		resp: map[string]any{"results": []any{}, "next": "", "unread": 3, "unseen": 1},
	}
	feed := newTestFeed(t, fake)

	got, err := feed.Get(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, got.Unread)
	require.NotNil(t, got.Unseen)
	assert.Equal(t, 3, *got.Unread)
	assert.Equal(t, 1, *got.Unseen)
}

func TestGetActivityDetail(t *testing.T) {
	fake := &fakeRequester{}
	feed := newTestFeed(t, fake)

	_, err := feed.GetActivityDetail(context.Background(), "act-9", &flume.GetOptions{
		Pagination: flume.Pagination{Limit: 50, IDGT: "stale-cursor"},
		MarkRead:   flume.MarkAll(),
	})
	require.NoError(t, err)

	req := fake.last(t)
	assert.Equal(t, "act-9", req.Query.Get("id_lte"))
	assert.Equal(t, "act-9", req.Query.Get("id_gte"))
	assert.Equal(t, "1", req.Query.Get("limit"))
	assert.False(t, req.Query.Has("id_gt"))
	// Unrelated options ride along untouched.
	assert.Equal(t, "true", req.Query.Get("mark_read"))

	_, err = feed.GetActivityDetail(context.Background(), "", nil)
	assert.True(t, flerrs.IsValidation(err))
}

func TestUpdateActivityToTargets(t *testing.T) {
	when := flume.Time{Time: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}

	tests := []struct {
		name string
		args flume.UpdateToTargetsArgs
		ok   bool
	}{
		{
			name: "missing foreign id",
			args: flume.UpdateToTargetsArgs{Time: when, New: []string{"x"}},
		},
		{
			name: "missing time",
			args: flume.UpdateToTargetsArgs{ForeignID: "fid", New: []string{"x"}},
		},
		{
			name: "no lists at all",
			args: flume.UpdateToTargetsArgs{ForeignID: "fid", Time: when},
		},
		{
			name: "new combined with added",
			args: flume.UpdateToTargetsArgs{ForeignID: "fid", Time: when, New: []string{"x"}, Added: []string{"y"}},
		},
		{
			name: "added and removed overlap",
			args: flume.UpdateToTargetsArgs{ForeignID: "fid", Time: when, Added: []string{"x"}, Removed: []string{"x"}},
		},
		{
			name: "disjoint added and removed",
			args: flume.UpdateToTargetsArgs{ForeignID: "fid", Time: when, Added: []string{"x"}, Removed: []string{"y"}},
			ok:   true,
		},
		{
			name: "new alone",
			args: flume.UpdateToTargetsArgs{ForeignID: "fid", Time: when, New: []string{"x"}},
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeRequester{}
			feed := newTestFeed(t, fake)

			_, err := feed.UpdateActivityToTargets(context.Background(), tt.args)
			if !tt.ok {
				assert.True(t, flerrs.IsValidation(err))
				assert.Empty(t, fake.reqs, "validation failures must never issue a request")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "feed_targets/user/42/activity_to_targets/", fake.last(t).Path)
		})
	}
}

func TestUpdateActivityToTargets_Body(t *testing.T) {
	fake := &fakeRequester{}
	feed := newTestFeed(t, fake)

	_, err := feed.UpdateActivityToTargets(context.Background(), flume.UpdateToTargetsArgs{
		ForeignID: "fid",
		Time:      flume.Time{Time: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)},
		Added:     []string{"x"},
		Removed:   []string{"y"},
	})
	require.NoError(t, err)

	b, err := json.Marshal(fake.last(t).Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"foreign_id": "fid",
		"time": "2026-05-01T12:00:00",
		"added_targets": ["x"],
		"removed_targets": ["y"]
	}`, string(b))
}

func TestTransportErrorsPassThrough(t *testing.T) {
	fake := &fakeRequester{err: flerrs.E(flerrs.KindTransport, http.StatusNotFound, "activity not found")}
	feed := newTestFeed(t, fake)

	_, err := feed.RemoveActivity(context.Background(), flume.ByID("missing"))
	require.Error(t, err)
	assert.True(t, flerrs.IsTransport(err))

	flerr := &flerrs.Error{}
	require.ErrorAs(t, err, &flerr)
	assert.Equal(t, http.StatusNotFound, flerr.Status)
}

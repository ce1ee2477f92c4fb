package flume

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	flerrs "github.com/jdholdren/flume/errors"
	"github.com/jdholdren/flume/logger"
	"github.com/jdholdren/flume/realtime"
)

// Feed is a handle on one activity stream. All of its identity fields are
// derived at construction by [Client.Feed] and immutable after, so a Feed is
// safe for concurrent use; independent calls carry no ordering guarantee
// beyond what the transport gives.
type Feed struct {
	client *Client

	slug   string
	userID string

	id      string // slug:userID
	urlPath string // slug/userID
	joined  string // slug+userID, feeds the signature and channel name

	token     string
	signature string
}

// ID returns the canonical feed id, slug:userID.
func (f *Feed) ID() string {
	return f.id
}

// Slug returns the feed group slug.
func (f *Feed) Slug() string {
	return f.slug
}

// UserID returns the feed's user id.
func (f *Feed) UserID() string {
	return f.userID
}

func (f *Feed) opCtx(ctx context.Context, op string) context.Context {
	return logger.Ctx(ctx, slog.String("feed_id", f.id), slog.String("op", op))
}

// AddActivity submits a single activity to the feed. Verb and object are
// required; a missing actor is filled in from the client's current user.
func (f *Feed) AddActivity(ctx context.Context, activity Activity) (*Activity, error) {
	resp, err := f.AddActivities(ctx, activity)
	if err != nil {
		return nil, err
	}
	if len(resp.Activities) == 0 {
		return nil, flerrs.E(flerrs.KindTransport, "server returned no activities")
	}

	return &resp.Activities[0], nil
}

// AddActivities submits activities to the feed in order; the response echoes
// them in the same order with server-assigned ids and times.
func (f *Feed) AddActivities(ctx context.Context, activities ...Activity) (*AddActivitiesResponse, error) {
	if len(activities) == 0 {
		return nil, flerrs.E(flerrs.KindValidation, "at least one activity is required", flerrs.Detail{Field: "activities", Error: "must not be empty"})
	}
	for i := range activities {
		if activities[i].Verb == "" || activities[i].Object == "" {
			return nil, flerrs.E(
				flerrs.KindValidation,
				fmt.Sprintf("activity %d is missing required fields", i),
				flerrs.Detail{Field: "verb", Error: "must not be empty"},
				flerrs.Detail{Field: "object", Error: "must not be empty"},
			)
		}
		if activities[i].Actor == "" {
			activities[i].Actor = f.client.userID
		}
	}

	out := &AddActivitiesResponse{}
	err := f.client.req.Do(f.opCtx(ctx, "add_activities"), &Request{
		Method: http.MethodPost,
		Path:   "feed/" + f.urlPath + "/",
		Body: struct {
			Activities []Activity `json:"activities"`
		}{Activities: activities},
		Signature: f.signature,
	}, out)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// RemoveActivity deletes one activity. Whether it deletes by server id or
// by foreign id is decided entirely by how the ref was constructed.
func (f *Feed) RemoveActivity(ctx context.Context, ref ActivityRef) (*RemoveActivityResponse, error) {
	if ref.id == "" {
		return nil, flerrs.E(flerrs.KindValidation, "activity ref is required", flerrs.Detail{Field: "ref", Error: "must carry an id or foreign id"})
	}

	query := url.Values{}
	if ref.byForeign {
		query.Set("foreign_id", "1")
	}

	out := &RemoveActivityResponse{}
	err := f.client.req.Do(f.opCtx(ctx, "remove_activity"), &Request{
		Method:    http.MethodDelete,
		Path:      "feed/" + f.urlPath + "/" + ref.id + "/",
		Query:     query,
		Signature: f.signature,
	}, out)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// FollowTarget is the user half of a follow target: either a plain
// [UserID] or another *Feed, whose user id is used.
type FollowTarget interface {
	targetUserID() string
}

// UserID wraps a plain user id for use as a follow target.
type UserID string

func (u UserID) targetUserID() string {
	return string(u)
}

func (f *Feed) targetUserID() string {
	return f.userID
}

// FollowOption tweaks follow and unfollow behavior.
type FollowOption func(*followOptions)

type followOptions struct {
	copyLimit   *int
	keepHistory bool
}

// WithActivityCopyLimit caps how much of the target's history is copied
// into this feed when the edge is created. Without it the server default
// applies and no limit is transmitted at all.
func WithActivityCopyLimit(limit int) FollowOption {
	return func(o *followOptions) {
		o.copyLimit = &limit
	}
}

// KeepHistory leaves previously-copied activities in place when an edge is
// removed.
func KeepHistory() FollowOption {
	return func(o *followOptions) {
		o.keepHistory = true
	}
}

// Follow creates a follow edge from this feed to targetSlug:targetUser.
func (f *Feed) Follow(ctx context.Context, targetSlug string, targetUser FollowTarget, opts ...FollowOption) (*BaseResponse, error) {
	target, err := f.followTarget(targetSlug, targetUser)
	if err != nil {
		return nil, err
	}

	var options followOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.copyLimit != nil && *options.copyLimit < 0 {
		return nil, flerrs.E(flerrs.KindValidation, "activity copy limit must not be negative", flerrs.Detail{Field: "activityCopyLimit", Error: "must be >= 0"})
	}

	out := &BaseResponse{}
	err = f.client.req.Do(f.opCtx(ctx, "follow"), &Request{
		Method: http.MethodPost,
		Path:   "feed/" + f.urlPath + "/following/",
		Body: struct {
			Target            string `json:"target"`
			ActivityCopyLimit *int   `json:"activity_copy_limit,omitempty"`
		}{Target: target, ActivityCopyLimit: options.copyLimit},
		Signature: f.signature,
	}, out)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Unfollow removes the follow edge to targetSlug:targetUser. With
// [KeepHistory], activities already copied from the target stay put.
func (f *Feed) Unfollow(ctx context.Context, targetSlug string, targetUser FollowTarget, opts ...FollowOption) (*BaseResponse, error) {
	target, err := f.followTarget(targetSlug, targetUser)
	if err != nil {
		return nil, err
	}

	var options followOptions
	for _, opt := range opts {
		opt(&options)
	}
	query := url.Values{}
	if options.keepHistory {
		query.Set("keep_history", "1")
	}

	out := &BaseResponse{}
	err = f.client.req.Do(f.opCtx(ctx, "unfollow"), &Request{
		Method:    http.MethodDelete,
		Path:      "feed/" + f.urlPath + "/following/" + target + "/",
		Query:     query,
		Signature: f.signature,
	}, out)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// followTarget validates and resolves the target feed id.
func (f *Feed) followTarget(targetSlug string, targetUser FollowTarget) (string, error) {
	if targetUser == nil {
		return "", flerrs.E(flerrs.KindValidation, "target user is required", flerrs.Detail{Field: "targetUser", Error: "must not be nil"})
	}
	userID := targetUser.targetUserID()

	if err := ValidateFeedSlug(targetSlug); err != nil {
		return "", err
	}
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}

	return targetSlug + ":" + userID, nil
}

// Following lists the feeds this feed follows.
func (f *Feed) Following(ctx context.Context, opts *FollowListOptions) (*FollowListResponse, error) {
	return f.followList(f.opCtx(ctx, "following"), "following", opts)
}

// Followers lists the feeds following this one.
func (f *Feed) Followers(ctx context.Context, opts *FollowListOptions) (*FollowListResponse, error) {
	return f.followList(f.opCtx(ctx, "followers"), "followers", opts)
}

func (f *Feed) followList(ctx context.Context, direction string, opts *FollowListOptions) (*FollowListResponse, error) {
	out := &FollowListResponse{}
	err := f.client.req.Do(ctx, &Request{
		Method:    http.MethodGet,
		Path:      "feed/" + f.urlPath + "/" + direction + "/",
		Query:     opts.values(),
		Signature: f.signature,
	}, out)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Get reads the feed. The composed options decide whether the plain or the
// enriched endpoint variant serves the request.
func (f *Feed) Get(ctx context.Context, opts *GetOptions) (*FeedResponse, error) {
	vals := opts.values()
	f.client.replaceReactionOptions(vals)

	path := "feed/" + f.urlPath + "/"
	if f.client.shouldUseEnrichEndpoint(vals) {
		path = "enrich/" + path
	}

	out := &FeedResponse{}
	err := f.client.req.Do(f.opCtx(ctx, "get"), &Request{
		Method:    http.MethodGet,
		Path:      path,
		Query:     vals,
		Signature: f.signature,
	}, out)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// GetActivityDetail reads a single activity by pinning both cursors to its
// id with a page size of one. Any other options given are carried along.
func (f *Feed) GetActivityDetail(ctx context.Context, activityID string, opts *GetOptions) (*FeedResponse, error) {
	if activityID == "" {
		return nil, flerrs.E(flerrs.KindValidation, "activity id is required", flerrs.Detail{Field: "activityID", Error: "must not be empty"})
	}

	detail := GetOptions{}
	if opts != nil {
		detail = *opts
	}
	detail.IDLTE = activityID
	detail.IDGTE = activityID
	detail.IDGT = ""
	detail.IDLT = ""
	detail.Limit = 1

	return f.Get(ctx, &detail)
}

// UpdateToTargetsArgs holds the target-list changes for one activity,
// addressed by its foreign id and original time.
type UpdateToTargetsArgs struct {
	ForeignID string
	Time      Time

	// New replaces the target list wholesale and is mutually exclusive
	// with Added and Removed.
	New     []string
	Added   []string
	Removed []string
}

func (a UpdateToTargetsArgs) validate() error {
	if a.ForeignID == "" {
		return flerrs.E(flerrs.KindValidation, "foreign id is required", flerrs.Detail{Field: "foreignID", Error: "must not be empty"})
	}
	if a.Time.IsZero() {
		return flerrs.E(flerrs.KindValidation, "activity time is required", flerrs.Detail{Field: "time", Error: "must not be zero"})
	}
	if len(a.New) == 0 && len(a.Added) == 0 && len(a.Removed) == 0 {
		return flerrs.E(flerrs.KindValidation, "no target changes given", flerrs.Detail{Field: "new", Error: "one of new, added or removed must be set"})
	}
	if len(a.New) > 0 && (len(a.Added) > 0 || len(a.Removed) > 0) {
		return flerrs.E(flerrs.KindValidation, "new targets cannot be combined with added or removed", flerrs.Detail{Field: "new", Error: "mutually exclusive with added and removed"})
	}

	// Pairwise scan; the lists are expected to be small.
	for _, added := range a.Added {
		for _, removed := range a.Removed {
			if added == removed {
				return flerrs.E(
					flerrs.KindValidation,
					fmt.Sprintf("target %q is both added and removed", added),
					flerrs.Detail{Field: "added", Error: "must not overlap removed"},
				)
			}
		}
	}

	return nil
}

// UpdateActivityToTargets changes which target feeds an activity fans out
// to. All argument validation happens locally before anything is sent.
func (f *Feed) UpdateActivityToTargets(ctx context.Context, args UpdateToTargetsArgs) (*UpdateToTargetsResponse, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}

	out := &UpdateToTargetsResponse{}
	err := f.client.req.Do(f.opCtx(ctx, "update_to_targets"), &Request{
		Method: http.MethodPost,
		Path:   "feed_targets/" + f.urlPath + "/activity_to_targets/",
		Body: struct {
			ForeignID string   `json:"foreign_id"`
			Time      Time     `json:"time"`
			New       []string `json:"new_targets,omitempty"`
			Added     []string `json:"added_targets,omitempty"`
			Removed   []string `json:"removed_targets,omitempty"`
		}{
			ForeignID: args.ForeignID,
			Time:      args.Time,
			New:       args.New,
			Added:     args.Added,
			Removed:   args.Removed,
		},
		Signature: f.signature,
	}, out)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// channelName derives the realtime topic for this feed. The server routes
// on exactly this form, so it must never drift.
func (f *Feed) channelName() string {
	return "site-" + f.client.appID + "-feed-" + f.joined
}

// Subscribe opens a realtime subscription on this feed's notification
// channel; callback runs once per incoming change until the returned handle
// (or Unsubscribe) cancels it. Subscribing again replaces the previous
// subscription, canceling its handle first.
func (f *Feed) Subscribe(callback func(realtime.Message)) (Canceler, error) {
	if f.client.appID == "" {
		return nil, flerrs.E(flerrs.KindConfig, "an app id is required for realtime subscriptions", flerrs.Detail{Field: "AppID", Error: "must be configured on the client"})
	}

	subscriber, err := f.client.realtimeSubscriber()
	if err != nil {
		return nil, err
	}

	handle, err := f.client.subs.swap(f.channelName(), f.token, f.userID, func() (Canceler, error) {
		return subscriber.Subscribe(f.channelName(), f.token, f.userID, callback)
	})
	if err != nil {
		return nil, err
	}
	f.client.log.Info("subscribed to feed channel", "channel", f.channelName())

	return handle, nil
}

// Unsubscribe drops the registry entry for this feed's channel and cancels
// the underlying subscription, if there is one.
func (f *Feed) Unsubscribe() {
	if f.client.appID == "" {
		// Nothing can have been subscribed.
		return
	}
	f.client.subs.remove(f.channelName())
}

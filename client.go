package flume

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sethvargo/go-envconfig"

	flerrs "github.com/jdholdren/flume/errors"
	"github.com/jdholdren/flume/logger"
	"github.com/jdholdren/flume/realtime"
)

// How many derived feed signatures to keep around. One entry per (feed,
// token) pair, so this is generous for any single client.
const signatureCacheSize = 256

type (
	// Client talks to one application on the hosted feed service. It owns
	// the transport, the realtime connection, and the process-wide
	// subscription registry shared by every Feed it hands out.
	Client struct {
		apiKey          string
		appID           string
		userID          string
		enrichByDefault bool

		log  *slog.Logger
		req  Requester
		subs *subscriptionRegistry

		// Realtime connection, dialed on first use.
		dialMu      sync.Mutex
		subscriber  Subscriber
		realtimeURL string

		sigs *lru.Cache[string, string]
	}

	// ClientConfig holds everything needed to construct a Client. Only
	// APIKey is required; AppID is needed the first time a feed subscribes.
	ClientConfig struct {
		APIKey string
		AppID  string
		Region string

		// UserID identifies the current user; it fills in the actor of
		// any submitted activity that doesn't carry one.
		UserID string

		Timeout         time.Duration
		EnrichByDefault bool

		// Logger receives request and realtime lifecycle logs. Nil means
		// discard.
		Logger *slog.Logger

		// Requester overrides the default HTTP transport, mostly for tests.
		Requester Requester

		// Subscriber overrides the default realtime connection.
		Subscriber Subscriber
	}

	// Subscriber is the contract the realtime transport exposes to the
	// client: open a channel subscription, get back a cancellable handle.
	Subscriber interface {
		Subscribe(channel, token, userID string, handler func(realtime.Message)) (Canceler, error)
	}

	// Canceler tears down one channel subscription. Cancel is idempotent.
	Canceler interface {
		Cancel()
	}
)

// NewClient constructs a Client from the given config.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, flerrs.E(flerrs.KindConfig, "api key is required", flerrs.Detail{Field: "APIKey", Error: "must not be empty"})
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 6 * time.Second
	}

	req := cfg.Requester
	if req == nil {
		var err error
		req, err = newHTTPRequester(apiBaseURL(cfg.Region), cfg.APIKey, timeout, log)
		if err != nil {
			return nil, flerrs.E(flerrs.KindConfig, err)
		}
	}

	sigs, err := lru.New[string, string](signatureCacheSize)
	if err != nil {
		return nil, fmt.Errorf("error building signature cache: %w", err)
	}

	return &Client{
		apiKey:          cfg.APIKey,
		appID:           cfg.AppID,
		userID:          cfg.UserID,
		enrichByDefault: cfg.EnrichByDefault,
		log:             log,
		req:             req,
		subs:            newSubscriptionRegistry(),
		subscriber:      cfg.Subscriber,
		realtimeURL:     realtimeWSURL(cfg.Region, cfg.APIKey),
		sigs:            sigs,
	}, nil
}

// The env-var surface, kept apart from ClientConfig so envconfig never
// walks the injected collaborators.
type envConfig struct {
	APIKey          string        `env:"FLUME_API_KEY, required"`
	AppID           string        `env:"FLUME_APP_ID"`
	Region          string        `env:"FLUME_REGION"`
	UserID          string        `env:"FLUME_USER_ID"`
	Timeout         time.Duration `env:"FLUME_TIMEOUT, default=6s"`
	EnrichByDefault bool          `env:"FLUME_ENRICH_BY_DEFAULT, default=false"`
}

// NewClientFromEnv constructs a Client from FLUME_* environment variables.
func NewClientFromEnv(ctx context.Context) (*Client, error) {
	var cfg envConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, flerrs.E(flerrs.KindConfig, err)
	}

	return NewClient(ClientConfig{
		APIKey:          cfg.APIKey,
		AppID:           cfg.AppID,
		Region:          cfg.Region,
		UserID:          cfg.UserID,
		Timeout:         cfg.Timeout,
		EnrichByDefault: cfg.EnrichByDefault,
	})
}

func apiBaseURL(region string) string {
	host := "api.flume.io"
	if region != "" {
		host = region + "-api.flume.io"
	}
	return fmt.Sprintf("https://%s/api/v1.0/", host)
}

func realtimeWSURL(region, apiKey string) string {
	host := "realtime.flume.io"
	if region != "" {
		host = region + "-realtime.flume.io"
	}
	return fmt.Sprintf("wss://%s/ws?api_key=%s", host, url.QueryEscape(apiKey))
}

// Feed returns a handle on the feed identified by slug and userID. The
// token authorizes every request the handle makes; issuing tokens is the
// caller's business.
//
// Identity and signature are derived once here and never change for the
// life of the handle.
func (c *Client) Feed(slug, userID, token string) (*Feed, error) {
	if err := ValidateFeedSlug(slug); err != nil {
		return nil, err
	}
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, flerrs.E(flerrs.KindValidation, "feed token is required", flerrs.Detail{Field: "token", Error: "must not be empty"})
	}

	joined := slug + userID

	return &Feed{
		client:    c,
		slug:      slug,
		userID:    userID,
		id:        slug + ":" + userID,
		urlPath:   slug + "/" + userID,
		joined:    joined,
		token:     token,
		signature: c.signature(joined, token),
	}, nil
}

// signature returns the cached signature for the (feed, token) pair,
// deriving it on first sight.
func (c *Client) signature(joined, token string) string {
	key := joined + "\x00" + token
	if sig, ok := c.sigs.Get(key); ok {
		return sig
	}

	sig := signFeed(joined, token)
	c.sigs.Add(key, sig)

	return sig
}

// realtimeSubscriber returns the realtime transport, dialing the websocket
// connection the first time anything subscribes.
func (c *Client) realtimeSubscriber() (Subscriber, error) {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	if c.subscriber != nil {
		return c.subscriber, nil
	}

	conn, err := realtime.Dial(context.Background(), c.realtimeURL, c.log)
	if err != nil {
		return nil, flerrs.E(flerrs.KindTransport, fmt.Errorf("error dialing realtime endpoint: %w", err))
	}
	c.subscriber = connSubscriber{conn: conn}

	return c.subscriber, nil
}

// connSubscriber adapts *realtime.Conn to the Subscriber contract.
type connSubscriber struct {
	conn *realtime.Conn
}

func (s connSubscriber) Subscribe(channel, token, userID string, handler func(realtime.Message)) (Canceler, error) {
	sub, err := s.conn.Subscribe(channel, token, userID, handler)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Raw enrichment option names and the wire names they become. Both the
// legacy ownReactions spelling and the newer withOwnReactions collapse to
// the same wire key.
var reactionOptionRenames = map[string]string{
	"ownReactions":         "with_own_reactions",
	"withOwnReactions":     "with_own_reactions",
	"withOwnChildren":      "with_own_children",
	"withReactionCounts":   "with_reaction_counts",
	"withRecentReactions":  "with_recent_reactions",
	"recentReactionsLimit": "recent_reactions_limit",
	"reactionKindsFilter":  "reaction_kinds_filter",
}

// replaceReactionOptions rewrites the raw enrichment options in vals into
// their wire form, in place.
func (c *Client) replaceReactionOptions(vals url.Values) {
	for from, to := range reactionOptionRenames {
		v := vals.Get(from)
		if v == "" {
			continue
		}
		vals.Del(from)
		if !vals.Has(to) {
			vals.Set(to, v)
		}
	}
}

// shouldUseEnrichEndpoint decides whether a read goes to the enriched
// endpoint variant. An explicit enrich option wins and is consumed; failing
// that, requesting any reaction option implies enrichment.
func (c *Client) shouldUseEnrichEndpoint(vals url.Values) bool {
	if vals.Has("enrich") {
		enrich, _ := strconv.ParseBool(vals.Get("enrich"))
		vals.Del("enrich")
		return enrich
	}

	if c.enrichByDefault {
		return true
	}

	for key := range vals {
		if strings.HasPrefix(key, "with_") || key == "recent_reactions_limit" || key == "reaction_kinds_filter" {
			return true
		}
	}

	return false
}

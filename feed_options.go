package flume

import (
	"net/url"
	"strconv"
	"strings"
)

// GetOptions collects the per-read query options a caller can set. Each
// embedded group is independent; values composes them into a single flat
// query, last group winning on any key collision.
type GetOptions struct {
	Pagination
	Ranking
	Enrichment

	// MarkRead and MarkSeen flag notification activities as read/seen as a
	// side effect of the read.
	MarkRead MarkOption
	MarkSeen MarkOption
}

// Pagination holds activity-id cursors and a page size. Only one cursor
// direction makes sense per request; the server rejects nonsensical mixes.
type Pagination struct {
	IDGT  string
	IDGTE string
	IDLT  string
	IDLTE string
	Limit int
}

func (p Pagination) apply(vals url.Values) {
	setNonEmpty(vals, "id_gt", p.IDGT)
	setNonEmpty(vals, "id_gte", p.IDGTE)
	setNonEmpty(vals, "id_lt", p.IDLT)
	setNonEmpty(vals, "id_lte", p.IDLTE)
	if p.Limit > 0 {
		vals.Set("limit", strconv.Itoa(p.Limit))
	}
}

// Ranking selects a server-side ranking method. The client only forwards
// these; it never ranks anything itself.
type Ranking struct {
	Method  string
	Offset  int
	Session string
}

func (r Ranking) apply(vals url.Values) {
	setNonEmpty(vals, "ranking", r.Method)
	if r.Offset > 0 {
		vals.Set("offset", strconv.Itoa(r.Offset))
	}
	setNonEmpty(vals, "session", r.Session)
}

// Enrichment asks the server to expand references inside activities into
// full objects. The raw option names written here are rewritten into their
// wire form by the client before the request goes out.
type Enrichment struct {
	// Enrich forces the enriched endpoint on (or, when explicitly false,
	// off) regardless of the other flags.
	Enrich *bool

	OwnReactions         bool
	WithOwnReactions     bool
	WithOwnChildren      bool
	WithReactionCounts   bool
	WithRecentReactions  bool
	RecentReactionsLimit int
	ReactionKindsFilter  []string
}

func (e Enrichment) apply(vals url.Values) {
	if e.Enrich != nil {
		vals.Set("enrich", strconv.FormatBool(*e.Enrich))
	}
	if e.OwnReactions {
		vals.Set("ownReactions", "true")
	}
	if e.WithOwnReactions {
		vals.Set("withOwnReactions", "true")
	}
	if e.WithOwnChildren {
		vals.Set("withOwnChildren", "true")
	}
	if e.WithReactionCounts {
		vals.Set("withReactionCounts", "true")
	}
	if e.WithRecentReactions {
		vals.Set("withRecentReactions", "true")
	}
	if e.RecentReactionsLimit > 0 {
		vals.Set("recentReactionsLimit", strconv.Itoa(e.RecentReactionsLimit))
	}
	if len(e.ReactionKindsFilter) > 0 {
		vals.Set("reactionKindsFilter", strings.Join(e.ReactionKindsFilter, ","))
	}
}

// MarkOption is one of three shapes: mark everything, mark the activities in
// the current response, or mark an explicit list of activity ids. The zero
// value marks nothing and serializes to nothing.
type MarkOption struct {
	all     bool
	current bool
	ids     []string
}

// MarkAll marks every notification.
func MarkAll() MarkOption {
	return MarkOption{all: true}
}

// MarkCurrent marks the notifications returned by this request.
func MarkCurrent() MarkOption {
	return MarkOption{current: true}
}

// MarkIDs marks the given notification activity ids.
func MarkIDs(ids ...string) MarkOption {
	return MarkOption{ids: ids}
}

// queryValue returns the wire form of the option. Lists are comma-joined;
// that joined string replaces the list entirely, it never accompanies it.
func (m MarkOption) queryValue() (string, bool) {
	switch {
	case m.all:
		return "true", true
	case m.current:
		return "current", true
	case len(m.ids) > 0:
		return strings.Join(m.ids, ","), true
	}
	return "", false
}

// values flattens the option groups into one query mapping. The marking
// overrides are applied last and win over any raw key of the same name, so
// the output never carries a list-typed value.
func (o *GetOptions) values() url.Values {
	vals := url.Values{}
	if o == nil {
		return vals
	}

	o.Pagination.apply(vals)
	o.Ranking.apply(vals)
	o.Enrichment.apply(vals)

	if v, ok := o.MarkRead.queryValue(); ok {
		vals.Set("mark_read", v)
	}
	if v, ok := o.MarkSeen.queryValue(); ok {
		vals.Set("mark_seen", v)
	}

	return vals
}

// FollowListOptions pages through a feed's follow edges. Filter restricts
// the listing to the given feed ids.
type FollowListOptions struct {
	Limit  int
	Offset int
	Filter []string
}

func (o *FollowListOptions) values() url.Values {
	vals := url.Values{}
	if o == nil {
		return vals
	}

	if o.Limit > 0 {
		vals.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		vals.Set("offset", strconv.Itoa(o.Offset))
	}
	if len(o.Filter) > 0 {
		vals.Set("filter", strings.Join(o.Filter, ","))
	}

	return vals
}

func setNonEmpty(vals url.Values, key, value string) {
	if value != "" {
		vals.Set(key, value)
	}
}

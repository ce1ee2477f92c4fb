package flume

type (
	// BaseResponse carries the fields every API response includes.
	BaseResponse struct {
		Duration string `json:"duration,omitempty"`
	}

	// AddActivitiesResponse echoes the created activities, in the order
	// they were submitted, with their server-assigned ids and times.
	AddActivitiesResponse struct {
		BaseResponse
		Activities []Activity `json:"activities"`
	}

	// RemoveActivityResponse confirms a deletion.
	RemoveActivityResponse struct {
		BaseResponse
		Removed string `json:"removed"`
	}

	// FeedResponse is the result of reading a feed. Unread and Unseen are
	// only present on notification feeds.
	FeedResponse struct {
		BaseResponse
		Results []Activity `json:"results"`
		Next    string     `json:"next"`
		Unread  *int       `json:"unread,omitempty"`
		Unseen  *int       `json:"unseen,omitempty"`
	}

	// FollowEdge is one directed follow relation.
	FollowEdge struct {
		FeedID    string `json:"feed_id"`
		TargetID  string `json:"target_id"`
		CreatedAt Time   `json:"created_at"`
		UpdatedAt Time   `json:"updated_at"`
	}

	// FollowListResponse lists follow edges in either direction.
	FollowListResponse struct {
		BaseResponse
		Results []FollowEdge `json:"results"`
	}

	// UpdateToTargetsResponse reports which targets changed.
	UpdateToTargetsResponse struct {
		BaseResponse
		Added   []string `json:"added,omitempty"`
		Removed []string `json:"removed,omitempty"`
	}
)

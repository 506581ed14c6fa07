package extract

import "regexp"

// Structural markers for X.com post fragments
// These are isolated here because X changes their DOM frequently
// Update these when extraction breaks

const (
	attrTestID = "data-testid"

	testIDTweetText   = "tweetText"
	testIDUserName    = "User-Name"
	testIDTweetPhoto  = "tweetPhoto"
	testIDVideoPlayer = "videoPlayer"

	testIDReply   = "reply"
	testIDRetweet = "retweet"
	testIDLike    = "like"

	// Quoted-post avatar marker: data-testid="UserAvatar-Container-<handle>"
	avatarContainerPrefix = "UserAvatar-Container-"

	mediaHost        = "pbs.twimg.com"
	profileImagePath = "profile_images"

	adLabel = "Ad"
)

// statusRe matches a post permalink path and captures the numeric id
var statusRe = regexp.MustCompile(`/status/(\d+)`)

// quoteStatusRe matches a quoted-post permalink with its author handle
var quoteStatusRe = regexp.MustCompile(`^/([^/]+)/status/(\d+)`)

// metricRe captures the leading count from an engagement aria-label,
// e.g. "1,234 Replies" or "5.7K Likes"
var metricRe = regexp.MustCompile(`^([\d,.]+[KkMm]?)`)

package domain

// StatusError is the "status" value of every structured error body.
const StatusError = "error"

// Codes produced by this service.
const (
	CodeAllInstancesFailed = "error.api.all_instances_failed"
	CodeLinkMissing        = "error.api.link.missing"
	CodeLinkInvalid        = "error.api.link.invalid"
	CodeRequestInvalid     = "error.api.request.invalid"
	CodeMethodNotAllowed   = "error.api.method.not_allowed"
	CodeInternal           = "error.api.internal"
	CodeForbidden          = "error.api.forbidden"
	CodeCacheDisabled      = "error.api.cache.disabled"
	CodeCacheUnavailable   = "error.api.cache.unavailable"
)

// Codes commonly returned by upstream instances.
const (
	CodeLinkUnsupported           = "error.api.link.unsupported"
	CodeFetchFail                 = "error.api.fetch.fail"
	CodeFetchRate                 = "error.api.fetch.rate"
	CodeVideoUnavailable          = "error.api.content.video.unavailable"
	CodeVideoLive                 = "error.api.content.video.live"
	CodeVideoAgeRestricted        = "error.api.content.video.age"
	CodePostUnavailable           = "error.api.content.post.unavailable"
	CodeYouTubeLogin              = "error.api.youtube.login"
	CodeYouTubeDecipher           = "error.api.youtube.decipher"
	CodeYouTubeTokenExpired       = "error.api.youtube.token_expired"
	CodeUpstreamRequestUnreadable = "error.api.invalid_body"
)

var codeDescriptions = map[string]string{
	CodeAllInstancesFailed:        "every upstream instance failed",
	CodeLinkMissing:               "request has no url",
	CodeLinkInvalid:               "url is not a valid link",
	CodeRequestInvalid:            "request body is not a JSON object",
	CodeMethodNotAllowed:          "only POST is accepted",
	CodeInternal:                  "response could not be encoded",
	CodeForbidden:                 "caller is not allowed on this endpoint",
	CodeCacheDisabled:             "result cache is not configured",
	CodeCacheUnavailable:          "result cache backend failed",
	CodeLinkUnsupported:           "link is not supported",
	CodeFetchFail:                 "content could not be fetched, it may be private or restricted",
	CodeFetchRate:                 "upstream is rate limited",
	CodeVideoUnavailable:          "video unavailable, removed or private",
	CodeVideoLive:                 "live streams cannot be downloaded",
	CodeVideoAgeRestricted:        "video is age restricted",
	CodePostUnavailable:           "content unavailable",
	CodeYouTubeLogin:              "youtube requires authentication for this video",
	CodeYouTubeDecipher:           "youtube signature could not be deciphered",
	CodeYouTubeTokenExpired:       "youtube session expired",
	CodeUpstreamRequestUnreadable: "upstream could not read the request body",
}

// DescribeErrorCode returns a short human description of a known code.
func DescribeErrorCode(code string) string {
	if d, ok := codeDescriptions[code]; ok {
		return d
	}
	return "unknown error"
}

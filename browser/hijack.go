package browser

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// configToProto maps config names to blockable resource types. Images and
// stylesheets are absent on purpose: slides render through them.
var configToProto = map[string]proto.NetworkResourceType{
	"Font":  proto.NetworkResourceTypeFont,
	"Media": proto.NetworkResourceTypeMedia,
	"Ping":  proto.NetworkResourceTypePing,
}

// trackerDomains are analytics and ad hosts that slow page turns without
// contributing to what is rendered.
var trackerDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"facebook.net":          {},
	"hotjar.com":            {},
	"mixpanel.com":          {},
	"segment.io":            {},
	"fullstory.com":         {},
	"intercom.io":           {},
	"intercomcdn.com":       {},
	"hubspot.com":           {},
	"hs-analytics.net":      {},
	"scorecardresearch.com": {},
	"quantserve.com":        {},
	"bing.com":              {},
	"linkedin.com":          {},
	"licdn.com":             {},
	"ads-twitter.com":       {},
}

// isTrackerDomain checks a hostname and each parent domain.
func isTrackerDomain(host string) bool {
	host = strings.ToLower(host)
	for {
		if _, ok := trackerDomains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
}

// blockedTypes builds the lookup set for the configured names, ignoring
// names that are unknown or unsafe to block.
func blockedTypes(names []string) map[proto.NetworkResourceType]struct{} {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(names))
	for _, name := range names {
		if rt, ok := configToProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	return blocked
}

// shouldBlock decides one request.
func shouldBlock(blocked map[proto.NetworkResourceType]struct{}, rt proto.NetworkResourceType, rawURL string) bool {
	if _, ok := blocked[rt]; ok {
		return true
	}
	if u, err := url.Parse(rawURL); err == nil && isTrackerDomain(u.Hostname()) {
		return true
	}
	return false
}

// setupHijack installs a request interceptor that blocks the configured
// resource types and known trackers. The caller stops the returned router.
func setupHijack(page *rod.Page, names []string) *rod.HijackRouter {
	blocked := blockedTypes(names)

	router := page.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if shouldBlock(blocked, ctx.Request.Type(), ctx.Request.URL().String()) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks until router.Stop().
	go router.Run()

	return router
}

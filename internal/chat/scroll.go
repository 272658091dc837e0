package chat

import "sync"

// NearBottomThreshold is how far, in pixels, the viewport may sit above the
// end of the message list and still count as following it.
const NearBottomThreshold = 100

// ScrollPosition is the geometry of a scrollable message list.
type ScrollPosition struct {
	ScrollTop    float64 `json:"scrollTop"`
	ScrollHeight float64 `json:"scrollHeight"`
	ClientHeight float64 `json:"clientHeight"`
}

// NearBottom reports whether the viewport is within NearBottomThreshold of
// the end of the list.
func (p ScrollPosition) NearBottom() bool {
	return p.ScrollHeight-p.ScrollTop-p.ClientHeight < NearBottomThreshold
}

// Scroll behaviors understood by the page.
const (
	BehaviorAuto   = "auto"
	BehaviorSmooth = "smooth"
)

// Follower decides whether a list change should scroll to the newest
// message. It starts out following.
type Follower struct {
	mu        sync.Mutex
	following bool
	observed  bool
	settled   bool
}

// Observe records the latest scroll position reported by the page.
func (f *Follower) Observe(p ScrollPosition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observed = true
	f.following = p.NearBottom()
}

// Following reports whether the view is still pinned to the newest message.
func (f *Follower) Following() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.observed || f.following
}

// OnChange returns whether the page should scroll after a change and with
// which behavior. The first snapshot after a session opens jumps, later
// changes glide. A session switch always scrolls and resets following.
func (f *Follower) OnChange(reason Reason) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if reason == ReasonSessionOpened {
		f.observed = false
		f.following = true
		f.settled = false
		return true, BehaviorAuto
	}
	if f.observed && !f.following {
		return false, ""
	}
	if reason == ReasonSnapshot && !f.settled {
		f.settled = true
		return true, BehaviorAuto
	}
	return true, BehaviorSmooth
}

package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"golang.org/x/time/rate"

	"github.com/RajaChaiban/InstaAgent/internal/domain"
)

const (
	// candidateWindow is the fixed number of grid posts considered per
	// account. Pinned posts count against the window like any other.
	candidateWindow = 4

	navigateTimeout = 20 * time.Second
	settleDelay     = 2 * time.Second
	videoFrameCount = 3
	videoFrameGap   = 1500 * time.Millisecond
)

// Session is the exclusively-owned browser automation session. It
// implements the discovery, detail-fetch and submission ports. Callers must
// never use one Session from two goroutines: the pipeline runs accounts
// strictly sequentially for exactly that reason.
type Session struct {
	browser *rod.Browser
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Connect attaches to the browser at controlURL, or launches a local
// headless browser when controlURL is empty. Submissions are throttled to
// one per 30 seconds regardless of caller pacing.
func Connect(controlURL string, logger *slog.Logger) (*Session, error) {
	if controlURL == "" {
		u, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &Session{
		browser: browser,
		limiter: rate.NewLimiter(rate.Every(30*time.Second), 1),
		logger:  logger,
	}, nil
}

// Close detaches from the browser.
func (s *Session) Close() error {
	return s.browser.Close()
}

// Discover returns up to four recent posts for the account, pinned and
// unpinned mixed, in grid order. The profile feed JSON is fetched from
// inside the page so it rides the session's cookies.
func (s *Session) Discover(ctx context.Context, account string) ([]domain.PostCandidate, error) {
	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	profileURL := fmt.Sprintf("https://www.instagram.com/%s/", url.PathEscape(account))
	if err := page.Timeout(navigateTimeout).Navigate(profileURL); err != nil {
		return nil, fmt.Errorf("navigate to profile: %w", err)
	}
	page.Timeout(navigateTimeout).WaitLoad()
	time.Sleep(settleDelay)

	feedURL := fmt.Sprintf(
		"https://www.instagram.com/api/v1/users/web_profile_info/?username=%s",
		url.QueryEscape(account),
	)
	res, err := page.Eval(`async (u) => {
		const r = await fetch(u, { headers: { "x-ig-app-id": "936619743392459" } });
		return await r.text();
	}`, feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch profile feed: %w", err)
	}

	candidates, err := parseProfileFeed(res.Value.Str())
	if err != nil {
		return nil, err
	}

	s.logger.Info("discovered posts", "account", account, "count", len(candidates))
	return candidates, nil
}

// FetchDetail loads a single post page and captures its caption, timestamp
// and visual payload. A page that fails to load yields (nil, nil): a
// missing post is a miss, not an error.
func (s *Session) FetchDetail(ctx context.Context, postURL string) (*domain.PostDetail, error) {
	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.Timeout(navigateTimeout).Navigate(postURL); err != nil {
		s.logger.Warn("post navigation failed", "url", postURL, "error", err)
		return nil, nil
	}
	page.Timeout(navigateTimeout).WaitLoad()
	time.Sleep(settleDelay)

	caption := extractCaption(page)
	kind := detectKind(page, postURL)

	detail := &domain.PostDetail{
		UnitID:        shortcodeFromURL(postURL),
		URL:           postURL,
		Caption:       caption,
		CaptionLength: len([]rune(caption)),
		PublishedAt:   extractPublishedAt(page),
		Kind:          kind,
	}

	switch kind {
	case domain.ContentVideo, domain.ContentReel:
		// A few frames spaced out over playback, so the generator sees
		// more than the poster frame.
		for i := 0; i < videoFrameCount; i++ {
			if frame, err := page.Screenshot(false, nil); err == nil {
				detail.Visual.Frames = append(detail.Visual.Frames, frame)
			}
			time.Sleep(videoFrameGap)
		}
	default:
		shot, err := page.Screenshot(false, nil)
		if err != nil {
			s.logger.Warn("screenshot failed", "url", postURL, "error", err)
		} else {
			detail.Visual.Screenshot = shot
		}
	}

	if detail.Visual.Empty() {
		s.logger.Warn("no visual payload captured", "url", postURL)
	}
	return detail, nil
}

// Submit opens the post and publishes the comment. It is rate limited so a
// tightly-looping caller cannot burst comments at the platform.
func (s *Session) Submit(ctx context.Context, postURL, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	page, err := stealth.Page(s.browser)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.Timeout(navigateTimeout).Navigate(postURL); err != nil {
		return fmt.Errorf("navigate to post: %w", err)
	}
	page.Timeout(navigateTimeout).WaitLoad()
	time.Sleep(settleDelay)

	// Selector fallbacks: Instagram rotates markup between rollouts.
	var box *rod.Element
	for _, sel := range []string{
		`textarea[aria-label="Add a comment…"]`,
		`textarea[aria-label*="comment"]`,
		`form textarea`,
	} {
		if el, err := page.Timeout(3 * time.Second).Element(sel); err == nil {
			box = el
			break
		}
	}
	if box == nil {
		return fmt.Errorf("comment box not found on %s", postURL)
	}

	if err := box.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("focus comment box: %w", err)
	}
	if err := box.Input(text); err != nil {
		return fmt.Errorf("type comment: %w", err)
	}
	time.Sleep(time.Second)

	post, err := page.Timeout(5*time.Second).ElementR(`[role="button"], button`, `/^Post$/`)
	if err != nil {
		return fmt.Errorf("post button not found: %w", err)
	}
	if err := post.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click post: %w", err)
	}

	time.Sleep(settleDelay)
	s.logger.Info("comment submitted", "url", postURL, "length", len(text))
	return nil
}

// profileFeed mirrors the slice of web_profile_info we care about.
type profileFeed struct {
	Data struct {
		User struct {
			Media struct {
				Edges []struct {
					Node struct {
						Shortcode      string `json:"shortcode"`
						TakenAt        int64  `json:"taken_at_timestamp"`
						IsVideo        bool   `json:"is_video"`
						ProductType    string `json:"product_type"`
						PinnedForUsers []any  `json:"pinned_for_users"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"edge_owner_to_timeline_media"`
		} `json:"user"`
	} `json:"data"`
}

func parseProfileFeed(raw string) ([]domain.PostCandidate, error) {
	var feed profileFeed
	if err := json.Unmarshal([]byte(raw), &feed); err != nil {
		return nil, fmt.Errorf("parse profile feed: %w", err)
	}

	edges := feed.Data.User.Media.Edges
	candidates := make([]domain.PostCandidate, 0, candidateWindow)
	for _, e := range edges {
		if len(candidates) >= candidateWindow {
			break
		}
		node := e.Node
		if node.Shortcode == "" {
			continue
		}

		kind := domain.ContentImage
		path := "p"
		switch {
		case node.ProductType == "clips":
			kind = domain.ContentReel
			path = "reel"
		case node.IsVideo:
			kind = domain.ContentVideo
		}

		candidates = append(candidates, domain.PostCandidate{
			UnitID:      node.Shortcode,
			URL:         fmt.Sprintf("https://www.instagram.com/%s/%s/", path, node.Shortcode),
			Kind:        kind,
			PublishedAt: time.Unix(node.TakenAt, 0).UTC(),
			IsPinned:    len(node.PinnedForUsers) > 0,
		})
	}
	return candidates, nil
}

func extractCaption(page *rod.Page) string {
	for _, sel := range []string{
		`h1`,
		`div[data-testid="post-caption"] span`,
		`meta[property="og:description"]`,
	} {
		el, err := page.Timeout(2 * time.Second).Element(sel)
		if err != nil {
			continue
		}
		if strings.HasPrefix(sel, "meta") {
			if content, err := el.Attribute("content"); err == nil && content != nil && *content != "" {
				return sanitize(*content)
			}
			continue
		}
		if text, err := el.Text(); err == nil && text != "" {
			return sanitize(text)
		}
	}
	return ""
}

func extractPublishedAt(page *rod.Page) time.Time {
	el, err := page.Timeout(2 * time.Second).Element(`time[datetime]`)
	if err != nil {
		return time.Time{}
	}
	attr, err := el.Attribute("datetime")
	if err != nil || attr == nil {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, *attr)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func detectKind(page *rod.Page, postURL string) domain.ContentKind {
	if strings.Contains(postURL, "/reel/") {
		return domain.ContentReel
	}
	if _, err := page.Timeout(time.Second).Element("video"); err == nil {
		return domain.ContentVideo
	}
	return domain.ContentImage
}

// shortcodeFromURL pulls the shortcode out of /p/<code>/ or /reel/<code>/.
func shortcodeFromURL(postURL string) string {
	u, err := url.Parse(postURL)
	if err != nil {
		return postURL
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) >= 2 {
		return parts[len(parts)-1]
	}
	return postURL
}

func sanitize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Package webchat implements the sender contract by driving a web chat
// client in a real browser session.
//
// The browser profile is persisted on disk so the chat session survives
// restarts; pairing happens once via QR scan. One Client owns one
// browser, and a mutex serialises every send through it.
package webchat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/pigeon/internal/sender"
)

const (
	contactCacheSize = 128
	locateTimeout    = 5 * time.Second
	confirmPoll      = 500 * time.Millisecond
)

// Selectors locate the chat client's interface elements. The defaults
// match the stock web client; override them when the markup changes.
type Selectors struct {
	LoggedIn     string // present once the session is linked
	QRContainer  string // present while pairing is pending; data-ref holds the payload
	Search       string // contact search box
	SearchResult string // chat list entry title, matched against the contact name
	Composer     string // message input of an open chat
	Pending      string // outgoing message still awaiting the transport
	Delivered    string // outgoing message accepted by the transport
}

// DefaultSelectors returns the selector set for the stock web client.
func DefaultSelectors() Selectors {
	return Selectors{
		LoggedIn:     `#pane-side`,
		QRContainer:  `div[data-ref]`,
		Search:       `div[contenteditable="true"][data-tab="3"]`,
		SearchResult: `#pane-side span[title]`,
		Composer:     `div[contenteditable="true"][data-tab="10"]`,
		Pending:      `.message-out span[data-icon="msg-time"]`,
		Delivered:    `.message-out span[data-icon="msg-check"], .message-out span[data-icon="msg-dblcheck"]`,
	}
}

// Options configures a Client.
type Options struct {
	URL         string
	ProfileDir  string
	Headless    bool
	SendTimeout time.Duration // floor 20s; confirmation waits this long
	Selectors   *Selectors    // nil means DefaultSelectors
}

// Client drives one browser session. Implements sender.Sender and
// sender.SessionReporter.
type Client struct {
	opts Options
	sel  Selectors

	// mu serialises sends and guards the browser handles. The browser
	// is a single non-shareable resource.
	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page

	// contacts caches resolved chat URLs so repeat sends skip the
	// search box.
	contacts *lru.Cache[string, string]
}

var (
	_ sender.Sender          = (*Client)(nil)
	_ sender.SessionReporter = (*Client)(nil)
)

// New creates a Client. The browser is not launched until Start or the
// first Send.
func New(opts Options) *Client {
	if opts.SendTimeout < 20*time.Second {
		opts.SendTimeout = 20 * time.Second
	}
	sel := DefaultSelectors()
	if opts.Selectors != nil {
		sel = *opts.Selectors
	}
	cache, _ := lru.New[string, string](contactCacheSize)
	return &Client{opts: opts, sel: sel, contacts: cache}
}

// Start launches the browser and opens the chat client page.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.ensurePage(ctx)
	return err
}

// Close shuts the browser down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser == nil {
		return nil
	}
	err := c.browser.Close()
	c.browser, c.page = nil, nil
	return err
}

// Ready reports whether the session is linked and a send could start
// now. It never launches the browser; an unstarted client is not ready.
func (c *Client) Ready(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page == nil {
		return false
	}
	return c.loggedIn(c.page)
}

// Session reports the pairing state, including the QR payload while a
// scan is pending.
func (c *Client) Session(ctx context.Context) sender.SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	page, err := c.ensurePage(ctx)
	if err != nil {
		return sender.SessionInfo{State: sender.SessionDisconnected}
	}
	if c.loggedIn(page) {
		return sender.SessionInfo{State: sender.SessionLinked}
	}
	if has, el, err := page.Has(c.sel.QRContainer); err == nil && has {
		info := sender.SessionInfo{State: sender.SessionPending}
		if ref, err := el.Attribute("data-ref"); err == nil && ref != nil {
			info.QR = *ref
		}
		return info
	}
	return sender.SessionInfo{State: sender.SessionDisconnected}
}

// Send delivers one message. The outcome boundary is the Enter press:
// everything before it fails cleanly, everything after it is at worst
// unknown because the message may already be on its way.
func (c *Client) Send(ctx context.Context, contactName, message, correlationID string) sender.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := slog.With("correlation_id", correlationID, "contact", contactName)

	page, err := c.ensurePage(ctx)
	if err != nil {
		return sender.Failed(fmt.Sprintf("browser: %v", err))
	}
	if !c.loggedIn(page) {
		return sender.Failed("not logged in")
	}

	if err := c.openChat(page, contactName); err != nil {
		log.Warn("chat open failed", "error", err)
		return sender.Failed(err.Error())
	}

	if err := c.typeAndSend(page, message); err != nil {
		log.Warn("send failed", "error", err)
		return sender.Failed(err.Error())
	}

	if err := c.awaitDelivery(ctx, page); err != nil {
		log.Warn("delivery unconfirmed", "error", err)
		return sender.Unknown(err.Error())
	}

	log.Info("message delivered")
	return sender.OK()
}

// --- Browser session ---

func (c *Client) ensurePage(ctx context.Context) (*rod.Page, error) {
	if c.page != nil {
		return c.page, nil
	}

	l := launcher.New().
		Headless(c.opts.Headless).
		UserDataDir(c.opts.ProfileDir).
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: c.opts.URL})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("open chat page: %w", err)
	}
	_ = page.WaitStable(300 * time.Millisecond)

	c.browser = browser
	c.page = page
	slog.Info("webchat session opened", "url", c.opts.URL, "headless", c.opts.Headless)
	return page, nil
}

func (c *Client) loggedIn(page *rod.Page) bool {
	has, _, err := page.Has(c.sel.LoggedIn)
	return err == nil && has
}

// --- Contact resolution ---

func (c *Client) openChat(page *rod.Page, contact string) error {
	key := foldName(contact)

	// Fast path: a previously resolved chat URL.
	if url, ok := c.contacts.Get(key); ok {
		if err := c.openDirect(page, url); err == nil {
			return nil
		}
		c.contacts.Remove(key)
	}

	if err := c.openViaSearch(page, contact); err != nil {
		return err
	}
	if info, err := page.Info(); err == nil && info.URL != "" {
		c.contacts.Add(key, info.URL)
	}
	return nil
}

func (c *Client) openDirect(page *rod.Page, url string) error {
	if err := page.Navigate(url); err != nil {
		return err
	}
	if err := page.WaitStable(300 * time.Millisecond); err != nil {
		return err
	}
	_, err := find(page, c.sel.Composer, 3*time.Second)
	return err
}

func (c *Client) openViaSearch(page *rod.Page, contact string) error {
	search, err := find(page, c.sel.Search, locateTimeout)
	if err != nil {
		return fmt.Errorf("search box not found: %v", err)
	}
	if err := search.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("focus search: %v", err)
	}
	_ = search.SelectAllText()
	if err := search.Input(contact); err != nil {
		return fmt.Errorf("type contact name: %v", err)
	}

	entry, err := c.matchResult(page, contact)
	if err != nil {
		return err
	}
	if err := entry.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("open chat: %v", err)
	}
	if _, err := find(page, c.sel.Composer, locateTimeout); err != nil {
		return fmt.Errorf("chat did not open: %v", err)
	}
	return nil
}

// matchResult polls the filtered chat list for an entry whose title
// equals the contact name, case-insensitively.
func (c *Client) matchResult(page *rod.Page, contact string) (*rod.Element, error) {
	want := foldName(contact)
	deadline := time.Now().Add(locateTimeout)

	for {
		els, err := page.Elements(c.sel.SearchResult)
		if err == nil {
			for _, el := range els {
				title, err := el.Attribute("title")
				if err != nil || title == nil {
					continue
				}
				if foldName(*title) == want {
					return el, nil
				}
			}
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("contact not found: %s", contact)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// --- Message delivery ---

func (c *Client) typeAndSend(page *rod.Page, message string) error {
	composer, err := find(page, c.sel.Composer, locateTimeout)
	if err != nil {
		return fmt.Errorf("composer not found: %v", err)
	}
	if err := composer.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("focus composer: %v", err)
	}
	if err := composer.Input(message); err != nil {
		return fmt.Errorf("type message: %v", err)
	}
	if err := page.Keyboard.Press(input.Enter); err != nil {
		return fmt.Errorf("submit message: %v", err)
	}
	return nil
}

// awaitDelivery polls until the last outgoing message stops showing the
// pending marker and shows an accepted one.
func (c *Client) awaitDelivery(ctx context.Context, page *rod.Page) error {
	deadline := time.Now().Add(c.opts.SendTimeout)

	for {
		pending, _, pendErr := page.Has(c.sel.Pending)
		if pendErr == nil && !pending {
			if delivered, _, err := page.Has(c.sel.Delivered); err == nil && delivered {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("no delivery confirmation within %s", c.opts.SendTimeout)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation wait interrupted: %v", ctx.Err())
		case <-time.After(confirmPoll):
		}
	}
}

// --- Helpers ---

func find(page *rod.Page, sel string, timeout time.Duration) (*rod.Element, error) {
	el, err := page.Timeout(timeout).Element(sel)
	if err != nil {
		return nil, err
	}
	return el.CancelTimeout(), nil
}

func foldName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

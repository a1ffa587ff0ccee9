package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"PriceSentinel/internal/model"
)

const (
	// DefaultNSEBaseURL is the public NSE India site.
	DefaultNSEBaseURL = "https://www.nseindia.com"
	// DefaultSessionTTL is how long bootstrapped cookies are reused.
	DefaultSessionTTL = 10 * time.Minute
	// DefaultRequestTimeout bounds every upstream call.
	DefaultRequestTimeout = 10 * time.Second

	browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120 Safari/537.36"

	// maxAuthRetries is the number of retries after the first 401.
	maxAuthRetries = 2
)

type sessionEntry struct {
	cookie   string
	storedAt time.Time
	set      bool
}

// NSEFetcher implements Fetcher against the NSE India quote API. NSE only
// answers requests that look like a browser and carry cookies handed out by
// its HTML pages, so the fetcher bootstraps a cookie session first and
// retries twice when the API answers 401.
type NSEFetcher struct {
	BaseURL string
	Client  *http.Client
	// CookieOverride, when set, is used instead of bootstrapping a session.
	CookieOverride string
	SessionTTL     time.Duration
	// RetryDelays are the pauses before the first and second 401 retry.
	RetryDelays [maxAuthRetries]time.Duration

	mu      sync.Mutex
	session sessionEntry

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewNSEFetcher creates a fetcher with optional proxy support.
func NewNSEFetcher(baseURL, cookieOverride, proxyURL string, timeout time.Duration) *NSEFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if baseURL == "" {
		baseURL = DefaultNSEBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &NSEFetcher{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		Client:         &http.Client{Timeout: timeout, Transport: transport},
		CookieOverride: strings.TrimSpace(cookieOverride),
		SessionTTL:     DefaultSessionTTL,
		RetryDelays:    [maxAuthRetries]time.Duration{400 * time.Millisecond, 300 * time.Millisecond},
		now:            time.Now,
		sleep:          sleepContext,
	}
}

func (f *NSEFetcher) Name() string { return "nse" }

// nseQuoteResponse is the subset of /api/quote-equity the fetcher reads.
type nseQuoteResponse struct {
	PriceInfo *struct {
		LastPrice       *float64 `json:"lastPrice"`
		Change          *float64 `json:"change"`
		PChange         *float64 `json:"pChange"`
		IntraDayHighLow *struct {
			Min *float64 `json:"min"`
			Max *float64 `json:"max"`
		} `json:"intraDayHighLow"`
	} `json:"priceInfo"`
}

// FetchQuote returns the live quote for symbol. It fails with
// ErrQuoteUnavailable when NSE answers without a last price and with
// *UpstreamError on any other non-200 answer.
func (f *NSEFetcher) FetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	sym := NormalizeSymbol(symbol)
	endpoint := f.BaseURL + "/api/quote-equity?symbol=" + url.QueryEscape(sym)

	resp, err := f.getWithSession(ctx, endpoint, sym)
	if err != nil {
		return nil, fmt.Errorf("nse quote %s: %w", sym, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("nse quote %s: read body: %w", sym, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Source: "nse", StatusCode: resp.StatusCode, Body: snippet(body)}
	}

	var payload nseQuoteResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("nse quote %s: decode: %w", sym, err)
	}

	q := &model.Quote{Symbol: sym, FetchedAt: f.now()}
	if pi := payload.PriceInfo; pi != nil {
		q.Price = pi.LastPrice
		q.Change = pi.Change
		q.PercentChange = pi.PChange
		if hl := pi.IntraDayHighLow; hl != nil {
			q.High = hl.Max
			q.Low = hl.Min
		}
	}
	if q.Price == nil {
		return nil, fmt.Errorf("%w: nse returned no last price for %s", ErrQuoteUnavailable, sym)
	}
	return q, nil
}

// Search resolves a free-text company name to an NSE symbol using the
// autocomplete API. A 401 is retried once with a fresh session.
func (f *NSEFetcher) Search(ctx context.Context, query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", ErrSymbolNotFound
	}
	endpoint := f.BaseURL + "/api/search/autocomplete?q=" + url.QueryEscape(q)

	cookie, err := f.sessionCookie(ctx, q)
	if err != nil {
		return "", err
	}
	resp, err := f.get(ctx, endpoint, f.apiHeaders(f.symbolPage(q)), cookie)
	if err != nil {
		return "", fmt.Errorf("nse search: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		f.invalidateSession()
		if cookie, err = f.sessionCookie(ctx, q); err != nil {
			return "", err
		}
		if err := f.sleep(ctx, f.RetryDelays[1]); err != nil {
			return "", err
		}
		if resp, err = f.get(ctx, endpoint, f.apiHeaders(f.symbolPage(q)), cookie); err != nil {
			return "", fmt.Errorf("nse search: %w", err)
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("nse search: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{Source: "nse", StatusCode: resp.StatusCode, Body: snippet(body)}
	}

	var payload struct {
		Symbols []map[string]any `json:"symbols"`
		Quotes  []map[string]any `json:"quotes"`
		Data    []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ErrSymbolNotFound
	}
	list := payload.Symbols
	if len(list) == 0 {
		list = payload.Quotes
	}
	if len(list) == 0 {
		list = payload.Data
	}
	for _, item := range list {
		if s, ok := item["symbol"].(string); ok && s != "" {
			return NormalizeSymbol(s), nil
		}
	}
	return "", ErrSymbolNotFound
}

// getWithSession issues the API request with the session cookie attached.
// On 401 the first retry rebuilds the session, the second swaps the referer
// to the home page. The last response is returned whatever its status.
func (f *NSEFetcher) getWithSession(ctx context.Context, endpoint, sym string) (*http.Response, error) {
	cookie, err := f.sessionCookie(ctx, sym)
	if err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		resp, err := f.get(ctx, endpoint, f.apiHeaders(f.refererFor(attempt, sym)), cookie)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusUnauthorized || attempt == maxAuthRetries {
			return resp, nil
		}
		drain(resp)

		if attempt == 0 {
			f.invalidateSession()
			if cookie, err = f.sessionCookie(ctx, ""); err != nil {
				return nil, err
			}
		}
		if err := f.sleep(ctx, f.RetryDelays[attempt]); err != nil {
			return nil, err
		}
	}
}

func (f *NSEFetcher) refererFor(attempt int, sym string) string {
	if attempt >= maxAuthRetries {
		return f.BaseURL + "/"
	}
	return f.symbolPage(sym)
}

func (f *NSEFetcher) symbolPage(sym string) string {
	return f.BaseURL + "/get-quotes/equity?symbol=" + url.QueryEscape(sym)
}

// sessionCookie returns the cached cookie header, bootstrapping a new one
// when the cache is empty or older than SessionTTL. An empty string is a
// valid session: NSE handed out no cookies and the request goes without.
func (f *NSEFetcher) sessionCookie(ctx context.Context, sym string) (string, error) {
	now := f.now()

	f.mu.Lock()
	if f.session.set && now.Sub(f.session.storedAt) < f.SessionTTL {
		cookie := f.session.cookie
		f.mu.Unlock()
		return cookie, nil
	}
	f.mu.Unlock()

	cookie := f.CookieOverride
	if cookie == "" {
		var err error
		if cookie, err = f.bootstrap(ctx, sym); err != nil {
			return "", fmt.Errorf("nse session: %w", err)
		}
	}

	f.mu.Lock()
	f.session = sessionEntry{cookie: cookie, storedAt: now, set: true}
	f.mu.Unlock()
	return cookie, nil
}

func (f *NSEFetcher) invalidateSession() {
	f.mu.Lock()
	f.session = sessionEntry{}
	f.mu.Unlock()
}

// bootstrap visits the symbol page (or the home page when sym is empty) and
// then the home page, collecting every cookie either response sets.
func (f *NSEFetcher) bootstrap(ctx context.Context, sym string) (string, error) {
	first := f.BaseURL + "/"
	if sym != "" {
		first = f.symbolPage(sym)
	}

	var pairs []string
	seen := make(map[string]bool)
	for _, page := range []string{first, f.BaseURL + "/"} {
		resp, err := f.get(ctx, page, pageHeaders(), "")
		if err != nil {
			return "", err
		}
		for _, c := range resp.Cookies() {
			pair := c.Name + "=" + c.Value
			if c.Name == "" || seen[pair] {
				continue
			}
			seen[pair] = true
			pairs = append(pairs, pair)
		}
		drain(resp)
	}
	return strings.Join(pairs, "; "), nil
}

func (f *NSEFetcher) get(ctx context.Context, endpoint string, headers http.Header, cookie string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header = headers
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	return f.Client.Do(req)
}

// apiHeaders mimics the XHR a browser sends from the quote page.
func (f *NSEFetcher) apiHeaders(referer string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", browserUA)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "en-IN,en;q=0.9")
	h.Set("Referer", referer)
	h.Set("Origin", f.BaseURL)
	h.Set("Connection", "keep-alive")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("sec-ch-ua", `"Chromium";v="120", "Not=A?Brand";v="99"`)
	h.Set("sec-ch-ua-mobile", "?0")
	h.Set("sec-ch-ua-platform", `"Windows"`)
	return h
}

func pageHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", browserUA)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-IN,en;q=0.9")
	h.Set("Connection", "keep-alive")
	return h
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

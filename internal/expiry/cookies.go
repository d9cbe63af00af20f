package expiry

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"indian-stock-api/internal/api"
	"indian-stock-api/internal/brokererr"
	"indian-stock-api/internal/logger"
)

// WarmCookies visits the NSE option-chain page so the session jar carries the
// cookies the NSE JSON API requires. A blocked page is reported as a NetworkError.
func (d *Discoverer) WarmCookies(ctx context.Context) error {
	resp, err := d.client.Fetch(ctx, api.FetchRequest{
		Method:  http.MethodGet,
		URL:     d.cfg.CookieURL,
		Headers: api.BrowserHeaders(),
		Timeout: d.cfg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to warm NSE cookies: %w", err)
	}

	if blocked, title := accessDenied(resp.Body); blocked {
		return brokererr.Newf(brokererr.KindNetwork, "NSE cookie page blocked: %s", title)
	}

	logger.Debug(ctx, "NSE cookies warmed", "cookies", len(d.Cookies()))
	return nil
}

// accessDenied reports whether an HTML page is an edge block page
func accessDenied(body []byte) (bool, string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false, ""
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	return strings.Contains(strings.ToLower(title), "access denied"), title
}

// Cookies returns the session cookies for the NSE host by name
func (d *Discoverer) Cookies() map[string]string {
	out := make(map[string]string)
	jar := d.client.Jar()
	u, err := url.Parse(d.cfg.CookieURL)
	if err != nil || jar == nil {
		return out
	}
	for _, c := range jar.Cookies(u) {
		out[c.Name] = c.Value
	}
	return out
}

// RestoreCookies puts cached cookies back into the session jar
func (d *Discoverer) RestoreCookies(cookies map[string]string) {
	jar := d.client.Jar()
	u, err := url.Parse(d.cfg.CookieURL)
	if err != nil || jar == nil || len(cookies) == 0 {
		return
	}

	list := make([]*http.Cookie, 0, len(cookies))
	for name, value := range cookies {
		list = append(list, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	jar.SetCookies(u, list)
}

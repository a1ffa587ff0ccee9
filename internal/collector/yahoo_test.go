package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestYahooFetcher_FetchQuote(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"chart":{"result":[{"meta":{"regularMarketPrice":110,"regularMarketDayHigh":112,"regularMarketDayLow":104,"previousClose":100}}]}}`))
	}))
	defer srv.Close()

	f := NewYahooFetcher(srv.URL, "", time.Second)
	q, err := f.FetchQuote(context.Background(), "hdfcbank")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(path, "/HDFCBANK.NS") {
		t.Errorf("expected .NS ticker in path, got %s", path)
	}
	if *q.Price != 110 || *q.High != 112 || *q.Low != 104 {
		t.Errorf("unexpected quote %+v", q)
	}
	if q.Change == nil || *q.Change != 10 || q.PercentChange == nil || *q.PercentChange != 10 {
		t.Errorf("expected change 10 / 10%%, got %v %v", q.Change, q.PercentChange)
	}
}

func TestYahooFetcher_Index(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"chart":{"result":[{"meta":{"regularMarketPrice":22000}}]}}`))
	}))
	defer srv.Close()

	f := NewYahooFetcher(srv.URL, "", time.Second)
	q, err := f.FetchQuote(context.Background(), "NIFTY")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, "/^NSEI") {
		t.Errorf("expected mapped index ticker, got %s", path)
	}
	if q.Change != nil {
		t.Errorf("expected nil change without previous close, got %v", *q.Change)
	}
}

func TestYahooFetcher_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"no price", 200, `{"chart":{"result":[{"meta":{}}]}}`, func(err error) bool { return errors.Is(err, ErrQuoteUnavailable) }},
		{"no result", 200, `{"chart":{"result":[]}}`, func(err error) bool { return errors.Is(err, ErrQuoteUnavailable) }},
		{"server error", 503, `down`, func(err error) bool {
			var up *UpstreamError
			return errors.As(err, &up) && up.StatusCode == 503
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewYahooFetcher(srv.URL, "", time.Second).FetchQuote(context.Background(), "TCS")
			if !tt.check(err) {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

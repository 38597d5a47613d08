package feeds_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"podtrack/internal/apierr"
	"podtrack/internal/feeds"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>Test Show</title>
    <description>A show about tests</description>
    <link>http://example.com</link>
    <itunes:image href="http://example.com/cover.jpg"/>
    <itunes:category text="Technology"/>
    <item>
      <guid>guid-a</guid>
      <title>First</title>
      <description><![CDATA[<p>Episode <b>one</b></p>]]></description>
      <pubDate>Mon, 01 Sep 2025 14:45:00 +0000</pubDate>
      <enclosure url="http://example.com/a.mp3" length="123456" type="audio/mpeg"/>
      <itunes:duration>01:30</itunes:duration>
    </item>
    <item>
      <title>No GUID</title>
      <enclosure url="http://example.com/b.mp3" length="1" type="audio/mpeg"/>
    </item>
  </channel>
</rss>`

func TestFetchParsesFeedAndValidators(t *testing.T) {
	var gotIfNoneMatch, gotIfModifiedSince string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIfNoneMatch = r.Header.Get("If-None-Match")
		gotIfModifiedSince = r.Header.Get("If-Modified-Since")
		w.Header().Set("ETag", `"v2"`)
		w.Header().Set("Last-Modified", "Tue, 02 Sep 2025 00:00:00 GMT")
		w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	outcome := feeds.Fetch(context.Background(), server.Client(), server.URL, `"v1"`, "Mon, 01 Sep 2025 00:00:00 GMT")
	if outcome.Status != feeds.StatusFetched {
		t.Fatalf("status = %v, want StatusFetched (err: %v)", outcome.Status, outcome.Err)
	}
	if gotIfNoneMatch != `"v1"` {
		t.Errorf("If-None-Match = %q, want %q", gotIfNoneMatch, `"v1"`)
	}
	if gotIfModifiedSince == "" {
		t.Error("If-Modified-Since header not sent")
	}
	if outcome.ETag != `"v2"` {
		t.Errorf("new etag = %q, want %q", outcome.ETag, `"v2"`)
	}
	if outcome.LastModified == "" {
		t.Error("new Last-Modified not captured")
	}

	channel := outcome.Channel
	if channel.Title != "Test Show" {
		t.Errorf("channel title = %q", channel.Title)
	}
	if channel.ImageURL != "http://example.com/cover.jpg" {
		t.Errorf("channel image = %q", channel.ImageURL)
	}
	if channel.Category != "Technology" {
		t.Errorf("channel category = %q", channel.Category)
	}
	if len(channel.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(channel.Items))
	}
	if channel.Items[0].GUID != "guid-a" {
		t.Errorf("item guid = %q", channel.Items[0].GUID)
	}
	if channel.Items[0].Duration != "01:30" {
		t.Errorf("item duration = %q", channel.Items[0].Duration)
	}
	// Missing GUID falls back to the enclosure URL.
	if channel.Items[1].GUID != "http://example.com/b.mp3" {
		t.Errorf("fallback guid = %q", channel.Items[1].GUID)
	}
}

func TestFetchOmitsConditionalHeadersWithoutValidators(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["If-None-Match"]; ok {
			t.Error("If-None-Match sent without a cached etag")
		}
		if _, ok := r.Header["If-Modified-Since"]; ok {
			t.Error("If-Modified-Since sent without a cached value")
		}
		w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	outcome := feeds.Fetch(context.Background(), server.Client(), server.URL, "", "")
	if outcome.Status != feeds.StatusFetched {
		t.Fatalf("status = %v, want StatusFetched", outcome.Status)
	}
}

func TestFetchNotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	outcome := feeds.Fetch(context.Background(), server.Client(), server.URL, `"v1"`, "")
	if outcome.Status != feeds.StatusNotModified {
		t.Fatalf("status = %v, want StatusNotModified", outcome.Status)
	}
	if outcome.Channel != nil {
		t.Error("not-modified outcome must carry no channel")
	}
}

func TestFetchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	outcome := feeds.Fetch(context.Background(), server.Client(), server.URL, "", "")
	if outcome.Status != feeds.StatusFailed {
		t.Fatalf("status = %v, want StatusFailed", outcome.Status)
	}
	if outcome.Err.Kind != apierr.KindServer {
		t.Errorf("error kind = %v, want KindServer", outcome.Err.Kind)
	}
	if outcome.Err.Code != http.StatusInternalServerError {
		t.Errorf("error code = %d, want 500", outcome.Err.Code)
	}
}

func TestFetchParseErrorIsDistinct(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not xml"))
	}))
	defer server.Close()

	outcome := feeds.Fetch(context.Background(), server.Client(), server.URL, "", "")
	if outcome.Status != feeds.StatusFailed {
		t.Fatalf("status = %v, want StatusFailed", outcome.Status)
	}
	if outcome.Err.Kind != apierr.KindParse {
		t.Errorf("error kind = %v, want KindParse", outcome.Err.Kind)
	}
}

func TestFetchNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	outcome := feeds.Fetch(context.Background(), http.DefaultClient, url, "", "")
	if outcome.Status != feeds.StatusFailed {
		t.Fatalf("status = %v, want StatusFailed", outcome.Status)
	}
	if outcome.Err.Kind != apierr.KindNetwork {
		t.Errorf("error kind = %v, want KindNetwork", outcome.Err.Kind)
	}
}

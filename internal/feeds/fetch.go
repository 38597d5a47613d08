package feeds

import (
	"context"
	"io"
	"net/http"

	"podtrack/internal/apierr"
)

// Status discriminates the outcome of a conditional feed fetch.
type Status int

const (
	// StatusFetched means the feed was downloaded and parsed; Channel and the
	// new validators are set.
	StatusFetched Status = iota
	// StatusNotModified means the server answered 304; persisted state must
	// not be touched.
	StatusNotModified
	// StatusFailed means the fetch failed; Err carries the classified cause.
	StatusFailed
)

// Outcome is the result of Fetch. Callers branch on Status; failures are
// values, never panics.
type Outcome struct {
	Status       Status
	Channel      *Channel
	ETag         string
	LastModified string
	Err          *apierr.Error
}

// Fetch performs a conditional GET against feedURL. The etag and lastModified
// validators are sent as If-None-Match / If-Modified-Since when non-empty.
// The fetch has no side effects beyond the network call.
func Fetch(ctx context.Context, client *http.Client, feedURL, etag, lastModified string) Outcome {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return failed(apierr.Classify(err))
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := client.Do(req)
	if err != nil {
		return failed(apierr.Classify(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return Outcome{Status: StatusNotModified}
	case resp.StatusCode != http.StatusOK:
		return failed(apierr.Server(resp.StatusCode, resp.Status))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return failed(apierr.Classify(err))
	}

	channel, err := Parse(data)
	if err != nil {
		return failed(apierr.Parse(err))
	}

	return Outcome{
		Status:       StatusFetched,
		Channel:      channel,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
}

func failed(err *apierr.Error) Outcome {
	return Outcome{Status: StatusFailed, Err: err}
}

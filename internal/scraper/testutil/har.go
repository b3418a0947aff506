// Package testutil records and replays portal traffic as HAR archives so
// scraper flows can be exercised without reaching the bank.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
)

// Archive is the subset of HAR 1.2 the replayer needs.
type Archive struct {
	Entries []Entry `json:"entries"`
}

type Entry struct {
	Request  Request  `json:"request"`
	Response Response `json:"response"`
}

type Request struct {
	Method  string   `json:"method"`
	URL     string   `json:"url"`
	Headers []Header `json:"headers,omitempty"`
	Body    string   `json:"body,omitempty"`
}

type Response struct {
	Status  int      `json:"status"`
	Headers []Header `json:"headers,omitempty"`
	Content Content  `json:"content"`
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Content holds a response body, base64 encoded when Encoding says so.
type Content struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
	Encoding string `json:"encoding,omitempty"`
	Size     int    `json:"size,omitempty"`
}

// Bytes returns the decoded body. Undecodable base64 is served as-is.
func (c Content) Bytes() []byte {
	if c.Encoding == "base64" {
		if b, err := base64.StdEncoding.DecodeString(c.Text); err == nil {
			return b
		}
	}
	return []byte(c.Text)
}

// Header returns the first value of name, case-insensitively.
func (r Response) Header(name string) string {
	return headerValue(r.Headers, name)
}

func headerValue(hs []Header, name string) string {
	for _, h := range hs {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Filter keeps the entries whose host is one of hosts or a subdomain of one.
// Portal recordings carry analytics and chat widgets that replay never needs.
func (a *Archive) Filter(hosts ...string) *Archive {
	out := &Archive{Entries: make([]Entry, 0, len(a.Entries))}
	for _, e := range a.Entries {
		u, err := url.Parse(e.Request.URL)
		if err != nil {
			continue
		}
		for _, h := range hosts {
			if u.Hostname() == h || strings.HasSuffix(u.Hostname(), "."+h) {
				out.Entries = append(out.Entries, e)
				break
			}
		}
	}
	return out
}

// devtoolsArchive is the full export written by Chrome DevTools: entries sit
// under "log" and request bodies under postData.
type devtoolsArchive struct {
	Log struct {
		Entries []struct {
			Request struct {
				Method   string   `json:"method"`
				URL      string   `json:"url"`
				Headers  []Header `json:"headers"`
				PostData *struct {
					Text string `json:"text"`
				} `json:"postData"`
			} `json:"request"`
			Response Response `json:"response"`
		} `json:"entries"`
	} `json:"log"`
}

// LoadHAR reads a recording in either the DevTools export format or the
// flattened format SaveHAR writes.
func LoadHAR(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "har: read %s", path)
	}

	var dt devtoolsArchive
	if err := json.Unmarshal(data, &dt); err == nil && len(dt.Log.Entries) > 0 {
		a := &Archive{Entries: make([]Entry, len(dt.Log.Entries))}
		for i, e := range dt.Log.Entries {
			req := Request{Method: e.Request.Method, URL: e.Request.URL, Headers: e.Request.Headers}
			if e.Request.PostData != nil {
				req.Body = e.Request.PostData.Text
			}
			a.Entries[i] = Entry{Request: req, Response: e.Response}
		}
		return a, nil
	}

	var a Archive
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, eris.Wrapf(err, "har: parse %s", path)
	}
	return &a, nil
}

// SaveHAR writes a in the flattened format.
func SaveHAR(path string, a *Archive) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return eris.Wrap(err, "har: marshal")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "har: write %s", path)
	}
	return nil
}

func MustLoadHAR(t *testing.T, path string) *Archive {
	t.Helper()

	a, err := LoadHAR(path)
	if err != nil {
		t.Fatalf("load recording %s: %v", path, err)
	}
	return a
}

package torznab_test

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"wharf/internal/api"
	"wharf/internal/logging"
	"wharf/internal/protocol/torznab"
	"wharf/internal/services"
	"wharf/internal/testsupport"
)

type fakeSearch struct {
	results []api.SearchResult
	err     error
	last    api.SearchRequest
	calls   int
}

func (f *fakeSearch) Search(ctx context.Context, req api.SearchRequest) ([]api.SearchResult, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// Parse-side documents. Attr elements arrive namespaced, so the field tag
// matches on the local name.
type feedDoc struct {
	XMLName xml.Name    `xml:"rss"`
	Channel feedChannel `xml:"channel"`
}

type feedChannel struct {
	Title string     `xml:"title"`
	Items []feedItem `xml:"item"`
}

type feedItem struct {
	Title     string        `xml:"title"`
	GUID      string        `xml:"guid"`
	Link      string        `xml:"link"`
	Category  string        `xml:"category"`
	PubDate   string        `xml:"pubDate"`
	Enclosure feedEnclosure `xml:"enclosure"`
	Attrs     []feedAttr    `xml:"attr"`
}

type feedEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type feedAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func (i feedItem) attr(name string) string {
	for _, a := range i.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

type errorDoc struct {
	XMLName     xml.Name `xml:"error"`
	Code        int      `xml:"code,attr"`
	Description string   `xml:"description,attr"`
}

type capsDoc struct {
	XMLName xml.Name `xml:"caps"`
	Server  struct {
		Title string `xml:"title,attr"`
	} `xml:"server"`
	Limits struct {
		Max     int `xml:"max,attr"`
		Default int `xml:"default,attr"`
	} `xml:"limits"`
	Searching struct {
		TVSearch struct {
			Available       string `xml:"available,attr"`
			SupportedParams string `xml:"supportedParams,attr"`
		} `xml:"tv-search"`
	} `xml:"searching"`
	Categories struct {
		Categories []struct {
			ID   int    `xml:"id,attr"`
			Name string `xml:"name,attr"`
		} `xml:"category"`
	} `xml:"categories"`
}

type nzbParsed struct {
	XMLName xml.Name `xml:"nzb"`
	Meta    []struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"head>meta"`
	Files []struct {
		Subject  string `xml:"subject,attr"`
		Segments []struct {
			ID string `xml:",chardata"`
		} `xml:"segments>segment"`
	} `xml:"file"`
}

const testAPIKey = "torznab-key"

func newFacade(t *testing.T, fake *fakeSearch) *httptest.Server {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithAPIKey(testAPIKey))
	cfg.Search.Categories = []string{"movies", "tv"}
	handler := torznab.NewHandler(cfg, fake, logging.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func facadeGet(t *testing.T, srv *httptest.Server, params url.Values) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.Get(srv.URL + "/torznab/api?" + params.Encode())
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func authedParams(pairs ...string) url.Values {
	values := url.Values{}
	values.Set("apikey", testAPIKey)
	for i := 0; i+1 < len(pairs); i += 2 {
		values.Set(pairs[i], pairs[i+1])
	}
	return values
}

func TestCapsListsCategoriesAndModes(t *testing.T) {
	srv := newFacade(t, &fakeSearch{})

	// Caps needs no key.
	resp, body := facadeGet(t, srv, url.Values{"t": []string{"caps"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var caps capsDoc
	if err := xml.Unmarshal(body, &caps); err != nil {
		t.Fatalf("unmarshal caps: %v\n%s", err, body)
	}
	if caps.Server.Title != "wharf" {
		t.Errorf("server title = %q", caps.Server.Title)
	}
	if caps.Limits.Max <= 0 || caps.Limits.Default <= 0 {
		t.Errorf("limits = %+v", caps.Limits)
	}
	if caps.Searching.TVSearch.Available != "yes" {
		t.Errorf("tv-search availability = %q", caps.Searching.TVSearch.Available)
	}
	if !strings.Contains(caps.Searching.TVSearch.SupportedParams, "season") {
		t.Errorf("tv-search params = %q", caps.Searching.TVSearch.SupportedParams)
	}

	got := map[int]string{}
	for _, c := range caps.Categories.Categories {
		got[c.ID] = c.Name
	}
	if got[2000] != "Movies" || got[5000] != "TV" {
		t.Errorf("categories = %v", got)
	}
}

func TestSearchRejectsBadKey(t *testing.T) {
	fake := &fakeSearch{}
	srv := newFacade(t, fake)

	_, body := facadeGet(t, srv, url.Values{"t": []string{"search"}, "q": []string{"anything"}, "apikey": []string{"wrong"}})
	var doc errorDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		t.Fatalf("unmarshal error doc: %v\n%s", err, body)
	}
	if doc.Code != 100 {
		t.Errorf("code = %d, want 100", doc.Code)
	}
	if doc.Description != "Incorrect user credentials" {
		t.Errorf("description = %q", doc.Description)
	}
	if fake.calls != 0 {
		t.Errorf("search pipeline reached %d times with a bad key", fake.calls)
	}
}

func TestMissingAndUnknownModes(t *testing.T) {
	srv := newFacade(t, &fakeSearch{})

	_, body := facadeGet(t, srv, authedParams())
	var doc errorDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Code != 200 {
		t.Errorf("missing t code = %d, want 200", doc.Code)
	}

	_, body = facadeGet(t, srv, authedParams("t", "music"))
	if err := xml.Unmarshal(body, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Code != 202 {
		t.Errorf("unknown t code = %d, want 202", doc.Code)
	}
}

func TestSearchBuildsFeedItems(t *testing.T) {
	fake := &fakeSearch{results: []api.SearchResult{{
		Filename:   "1080p.WEB-DL.The.Shadows.Edge.S02E05.HEVC.mkv",
		Reference:  "ref-feed-1",
		Category:   "tv",
		SizeBytes:  4 << 30,
		UploadedAt: "2026-01-10T12:00:00Z",
		Score:      120,
		Title:      "the shadows edge",
		Season:     2,
		Episode:    5,
		Tags:       []string{"1080p", "web", "dl", "hevc"},
	}}}
	srv := newFacade(t, fake)

	_, body := facadeGet(t, srv, authedParams("t", "search", "q", "shadows edge"))
	var feed feedDoc
	if err := xml.Unmarshal(body, &feed); err != nil {
		t.Fatalf("unmarshal feed: %v\n%s", err, body)
	}
	if len(feed.Channel.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(feed.Channel.Items))
	}
	item := feed.Channel.Items[0]

	// The marker must follow the title even though the remote filename
	// led with quality tokens.
	if item.Title != "The Shadows Edge S02E05 1080p WEB-DL HEVC" {
		t.Errorf("title = %q", item.Title)
	}
	if item.GUID != "ref-feed-1" {
		t.Errorf("guid = %q", item.GUID)
	}
	if item.Category != "5000" {
		t.Errorf("category = %q, want 5000", item.Category)
	}
	if item.Enclosure.Length != 4<<30 || item.Enclosure.Type != "application/x-nzb" {
		t.Errorf("enclosure = %+v", item.Enclosure)
	}
	if !strings.Contains(item.Link, "t=get") || !strings.Contains(item.Link, "id=ref-feed-1") {
		t.Errorf("link = %q", item.Link)
	}
	if item.attr("size") != "4294967296" || item.attr("season") != "2" || item.attr("ep") != "5" {
		t.Errorf("attrs = %+v", item.Attrs)
	}

	pub, err := time.Parse(time.RFC1123Z, item.PubDate)
	if err != nil {
		t.Fatalf("pubDate %q: %v", item.PubDate, err)
	}
	want := time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)
	if !pub.Equal(want) {
		t.Errorf("pubDate = %v, want %v", pub, want)
	}
}

func TestTVSearchPassesStructuredParams(t *testing.T) {
	fake := &fakeSearch{}
	srv := newFacade(t, fake)

	_, body := facadeGet(t, srv, authedParams(
		"t", "tvsearch",
		"q", "shadows edge",
		"season", "2",
		"ep", "5",
		"cat", "5030,5040",
	))
	var feed feedDoc
	if err := xml.Unmarshal(body, &feed); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, body)
	}
	if fake.calls != 1 {
		t.Fatalf("pipeline called %d times", fake.calls)
	}
	req := fake.last
	if req.Title != "shadows edge" || req.Season != 2 || req.Episode != 5 {
		t.Errorf("request = %+v", req)
	}
	if req.Category != "tv" {
		t.Errorf("category = %q, want tv (from subcategory codes)", req.Category)
	}
	if req.Limit != 50 {
		t.Errorf("limit = %d, want configured max", req.Limit)
	}
}

func TestEmptyQueryYieldsEmptyFeed(t *testing.T) {
	fake := &fakeSearch{}
	srv := newFacade(t, fake)

	_, body := facadeGet(t, srv, authedParams("t", "search"))
	var feed feedDoc
	if err := xml.Unmarshal(body, &feed); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, body)
	}
	if len(feed.Channel.Items) != 0 {
		t.Errorf("items = %d, want 0", len(feed.Channel.Items))
	}
	if fake.calls != 0 {
		t.Errorf("pipeline called %d times for empty query", fake.calls)
	}
}

func TestUnindexedCategoryYieldsEmptyFeed(t *testing.T) {
	fake := &fakeSearch{}
	srv := newFacade(t, fake)

	// 3000 is audio; the facade indexes movies and tv only.
	_, body := facadeGet(t, srv, authedParams("t", "search", "q", "something", "cat", "3000"))
	var feed feedDoc
	if err := xml.Unmarshal(body, &feed); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, body)
	}
	if len(feed.Channel.Items) != 0 {
		t.Errorf("items = %d, want 0", len(feed.Channel.Items))
	}
	if fake.calls != 0 {
		t.Errorf("pipeline called %d times for unindexed category", fake.calls)
	}
}

func TestBadNumericParam(t *testing.T) {
	srv := newFacade(t, &fakeSearch{})

	_, body := facadeGet(t, srv, authedParams("t", "tvsearch", "q", "x", "season", "two"))
	var doc errorDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, body)
	}
	if doc.Code != 201 {
		t.Errorf("code = %d, want 201", doc.Code)
	}
	if !strings.Contains(doc.Description, "season") {
		t.Errorf("description = %q", doc.Description)
	}
}

func TestSearchErrorMapping(t *testing.T) {
	fake := &fakeSearch{err: services.Wrap(services.ErrValidation, services.StageSearch, "search", "bad query", nil)}
	srv := newFacade(t, fake)

	_, body := facadeGet(t, srv, authedParams("t", "search", "q", "x"))
	var doc errorDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, body)
	}
	if doc.Code != 201 {
		t.Errorf("validation error code = %d, want 201", doc.Code)
	}

	fake.err = errors.New("host unreachable")
	_, body = facadeGet(t, srv, authedParams("t", "search", "q", "x"))
	if err := xml.Unmarshal(body, &doc); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, body)
	}
	if doc.Code != 900 {
		t.Errorf("backend error code = %d, want 900", doc.Code)
	}
}

func TestGetReturnsReferenceDocument(t *testing.T) {
	srv := newFacade(t, &fakeSearch{})

	resp, body := facadeGet(t, srv, authedParams("t", "get", "id", "ref-9"))
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-nzb" {
		t.Errorf("content type = %q", ct)
	}
	var doc nzbParsed
	if err := xml.Unmarshal(body, &doc); err != nil {
		t.Fatalf("unmarshal nzb: %v\n%s", err, body)
	}
	if len(doc.Meta) == 0 || doc.Meta[0].Value != "ref-9" {
		t.Errorf("meta = %+v", doc.Meta)
	}
	if len(doc.Files) != 1 || len(doc.Files[0].Segments) != 1 || doc.Files[0].Segments[0].ID != "ref-9" {
		t.Errorf("files = %+v", doc.Files)
	}

	_, body = facadeGet(t, srv, authedParams("t", "get"))
	var errDoc errorDoc
	if err := xml.Unmarshal(body, &errDoc); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, body)
	}
	if errDoc.Code != 200 {
		t.Errorf("missing id code = %d, want 200", errDoc.Code)
	}
}

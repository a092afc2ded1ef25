package torznab

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"wharf/internal/api"
	"wharf/internal/config"
	"wharf/internal/logging"
	"wharf/internal/normalize"
	"wharf/internal/services"
)

// newznab error codes clients key their behavior on.
const (
	errCodeCredentials    = 100
	errCodeMissingParam   = 200
	errCodeIncorrectParam = 201
	errCodeNoSuchFunction = 202
	errCodeUnknown        = 900
)

const serverTitle = "wharf"

// SearchService is the slice of the service layer the indexer façade needs.
type SearchService interface {
	Search(ctx context.Context, req api.SearchRequest) ([]api.SearchResult, error)
}

// Handler serves the torznab API: caps, the search modes, and nzb retrieval.
// Authentication happens here rather than in shared middleware because
// clients expect failures as newznab error documents, not HTTP statuses.
type Handler struct {
	search   SearchService
	apiKey   string
	maxLimit int
	cats     []Category
	logger   *slog.Logger
}

func NewHandler(cfg *config.Config, search SearchService, logger *slog.Logger) *Handler {
	maxLimit := cfg.Search.MaxResults
	if maxLimit <= 0 {
		maxLimit = 50
	}
	return &Handler{
		search:   search,
		apiKey:   cfg.API.APIKey,
		maxLimit: maxLimit,
		cats:     Categories(cfg.Search.Categories),
		logger:   logging.NewComponentLogger(logger, "torznab"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("t")

	// Caps stays open like real indexers so clients can probe before
	// they are configured with a key.
	if mode == "caps" {
		h.writeCaps(w)
		return
	}
	if h.apiKey != "" && query.Get("apikey") != h.apiKey {
		h.writeError(w, errCodeCredentials, "Incorrect user credentials")
		return
	}

	switch mode {
	case "":
		h.writeError(w, errCodeMissingParam, "Missing parameter (t)")
	case "search", "tvsearch", "movie":
		h.handleSearch(w, r, mode)
	case "get":
		h.handleGet(w, query)
	default:
		h.writeError(w, errCodeNoSuchFunction, "No such function ("+mode+")")
	}
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request, mode string) {
	query := r.URL.Query()

	req := api.SearchRequest{Title: strings.TrimSpace(query.Get("q"))}
	category, catMatched := h.categoryParam(query.Get("cat"))
	req.Category = category

	if mode == "tvsearch" {
		season, err := queryInt(query, "season")
		if err != nil {
			h.writeError(w, errCodeIncorrectParam, "Incorrect parameter (season)")
			return
		}
		episode, err := queryInt(query, "ep")
		if err != nil {
			h.writeError(w, errCodeIncorrectParam, "Incorrect parameter (ep)")
			return
		}
		req.Season, req.Episode = season, episode
	}

	limit, err := queryInt(query, "limit")
	if err != nil {
		h.writeError(w, errCodeIncorrectParam, "Incorrect parameter (limit)")
		return
	}
	req.Limit = h.clampLimit(limit)
	offset, err := queryInt(query, "offset")
	if err != nil {
		h.writeError(w, errCodeIncorrectParam, "Incorrect parameter (offset)")
		return
	}

	// An empty query has nothing to recall, later pages have nothing more
	// to say, and a category we do not index matches nothing. All three
	// are empty feeds, not errors.
	if req.Title == "" || offset > 0 || !catMatched {
		h.writeFeed(w, nil)
		return
	}

	results, err := h.search.Search(r.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			h.writeError(w, errCodeIncorrectParam, "Incorrect parameter (q)")
			return
		}
		h.logger.Warn("facade search failed",
			logging.String("mode", mode),
			logging.String("query", req.Title),
			logging.Error(err))
		h.writeError(w, errCodeUnknown, "Unknown error")
		return
	}

	h.logger.Debug("facade search served",
		logging.String("mode", mode),
		logging.String("query", req.Title),
		logging.Int("results", len(results)))
	h.writeFeed(w, h.itemsFor(r, results))
}

// handleGet answers nzb retrieval. The document is a stub whose segment id
// carries the acquisition reference; the download façade lifts the id back
// out of the enclosure URL without ever fetching this.
func (h *Handler) handleGet(w http.ResponseWriter, query url.Values) {
	id := strings.TrimSpace(query.Get("id"))
	if id == "" {
		h.writeError(w, errCodeMissingParam, "Missing parameter (id)")
		return
	}

	doc := nzbDoc{
		Xmlns: "http://www.newzbin.com/DTD/2003/nzb",
		Head:  nzbHead{Meta: []nzbMeta{{Type: "reference", Value: id}}},
		Files: []nzbFile{{
			Poster:   serverTitle,
			Date:     time.Now().Unix(),
			Subject:  id,
			Groups:   []string{"alt.binaries." + serverTitle},
			Segments: []nzbSegment{{Bytes: 0, Number: 1, ID: id}},
		}},
	}

	w.Header().Set("Content-Type", "application/x-nzb")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.nzb"`)
	writeXMLBody(w, doc)
}

func (h *Handler) writeCaps(w http.ResponseWriter) {
	caps := capsResponse{
		Server: capsServer{Title: serverTitle},
		Limits: capsLimits{Max: h.maxLimit, Default: h.maxLimit},
		Searching: capsSearching{
			Search:      capsMode{Available: "yes", SupportedParams: "q,cat"},
			TVSearch:    capsMode{Available: "yes", SupportedParams: "q,cat,season,ep"},
			MovieSearch: capsMode{Available: "yes", SupportedParams: "q,cat"},
		},
	}
	for _, cat := range h.cats {
		caps.Categories.Categories = append(caps.Categories.Categories, capsCategory{ID: cat.ID, Name: cat.Name})
	}
	writeXML(w, caps)
}

func (h *Handler) writeFeed(w http.ResponseWriter, items []rssItem) {
	feed := rssFeed{
		Version:   "2.0",
		TorznabNS: "http://torznab.com/schemas/2015/feed",
		Channel: rssChannel{
			Title:       serverTitle,
			Description: "search results",
			Items:       items,
		},
	}
	writeXML(w, feed)
}

func (h *Handler) writeError(w http.ResponseWriter, code int, description string) {
	// Error documents go out with HTTP 200; clients read the code attribute.
	writeXML(w, errorResponse{Code: code, Description: description})
}

// itemsFor renders accepted candidates as feed items. Titles rebuild from
// the parsed fields rather than echoing the remote filename, so the marker
// sits right after the title no matter how the uploader ordered tokens.
func (h *Handler) itemsFor(r *http.Request, results []api.SearchResult) []rssItem {
	caser := cases.Title(language.Und)
	items := make([]rssItem, 0, len(results))
	for _, res := range results {
		item := rssItem{
			Title:   displayTitle(caser, res),
			GUID:    res.Reference,
			PubDate: parseUploaded(res.UploadedAt).Format(time.RFC1123Z),
		}

		downloadURL := h.downloadURL(r, res.Reference)
		item.Link = downloadURL
		item.Enclosure = enclosure{URL: downloadURL, Length: res.SizeBytes, Type: "application/x-nzb"}

		attrs := []torznabAttr{{Name: "size", Value: strconv.FormatInt(res.SizeBytes, 10)}}
		if cat, ok := ByHost(h.cats, res.Category); ok {
			item.Category = strconv.Itoa(cat.ID)
			attrs = append(attrs, torznabAttr{Name: "category", Value: strconv.Itoa(cat.ID)})
		}
		if res.Season > 0 {
			attrs = append(attrs, torznabAttr{Name: "season", Value: strconv.Itoa(res.Season)})
		}
		if res.Episode > 0 {
			attrs = append(attrs, torznabAttr{Name: "ep", Value: strconv.Itoa(res.Episode)})
		}
		item.Attrs = attrs

		items = append(items, item)
	}
	return items
}

// downloadURL points back at this façade's get mode on whatever host and
// mount path the request arrived on.
func (h *Handler) downloadURL(r *http.Request, reference string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	values := url.Values{}
	values.Set("t", "get")
	values.Set("id", reference)
	if h.apiKey != "" {
		values.Set("apikey", h.apiKey)
	}
	return scheme + "://" + r.Host + r.URL.Path + "?" + values.Encode()
}

// categoryParam maps a comma-separated code list onto the first host
// category we index. The second return is false when codes were given but
// none of them resolve.
func (h *Handler) categoryParam(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", true
	}
	for _, part := range strings.Split(raw, ",") {
		code, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if cat, ok := ByID(h.cats, code); ok {
			return cat.Host, true
		}
	}
	return "", false
}

func (h *Handler) clampLimit(limit int) int {
	if limit <= 0 || limit > h.maxLimit {
		return h.maxLimit
	}
	return limit
}

func displayTitle(caser cases.Caser, res api.SearchResult) string {
	title := res.Title
	if title == "" {
		title = res.Filename
	}

	parts := make([]string, 0, 3+len(res.Tags))
	parts = append(parts, caser.String(title))
	if code := (normalize.Result{Season: res.Season, Episode: res.Episode}).SECode(); code != "" {
		parts = append(parts, code)
	}
	if res.Year > 0 {
		parts = append(parts, strconv.Itoa(res.Year))
	}
	parts = append(parts, displayTags(res.Tags)...)
	return strings.Join(parts, " ")
}

// tagPairs re-joins tokens the normalizer split at a separator.
var tagPairs = map[[2]string]string{
	{"web", "dl"}:  "WEB-DL",
	{"blu", "ray"}: "BluRay",
}

// tagDisplay holds the release-name casing for tags where plain uppercase
// is wrong. Everything else goes out uppercased, resolutions as-is.
var tagDisplay = map[string]string{
	"webdl": "WEB-DL", "webrip": "WEBRip", "bluray": "BluRay", "bdrip": "BDRip",
	"brrip": "BRRip", "dvdrip": "DVDRip", "hdrip": "HDRip",
	"x264": "x264", "x265": "x265", "h264": "H264", "h265": "H265",
	"atmos": "Atmos", "multi": "MULTi", "truefrench": "TrueFrench",
	"subfrench": "SubFrench", "4k": "4K", "10bit": "10bit", "8bit": "8bit",
}

func displayTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for i := 0; i < len(tags); i++ {
		if i+1 < len(tags) {
			if merged, ok := tagPairs[[2]string{tags[i], tags[i+1]}]; ok {
				out = append(out, merged)
				i++
				continue
			}
		}
		if mapped, ok := tagDisplay[tags[i]]; ok {
			out = append(out, mapped)
			continue
		}
		if normalize.IsResolutionTag(tags[i]) {
			out = append(out, tags[i])
			continue
		}
		out = append(out, strings.ToUpper(tags[i]))
	}
	return out
}

// uploadedLayouts are tried in order against the host's timestamp string.
var uploadedLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

func parseUploaded(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range uploadedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

func queryInt(values url.Values, key string) (int, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("parse %s: %q", key, raw)
	}
	return n, nil
}

func writeXML(w http.ResponseWriter, doc any) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	writeXMLBody(w, doc)
}

func writeXMLBody(w http.ResponseWriter, doc any) {
	io.WriteString(w, xml.Header)
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	enc.Encode(doc)
}

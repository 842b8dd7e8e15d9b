// Package oneclick looks up title metadata in the OneClick (RBdigital) API
// and feeds it to the coverage engine.
package oneclick

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lepinkainen/folio/internal/cache"
	"github.com/lepinkainen/folio/internal/vendors"
)

// Messages OneClick answers with when it does not know an ISBN. It reports
// those with a 500, so the status code alone says nothing.
var notInCatalogPrefixes = []string{
	"Invalid 'MediaType', 'TitleId' or 'ISBN' token value supplied: ",
	"eXtensible Framework was unable to locate the resource",
}

// Image is one of the cover sizes OneClick offers: small, medium or large.
type Image struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Position is a series position OneClick sends either as a number or as a
// string.
type Position int

func (p *Position) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// Not worth failing the whole document over.
		*p = 0
		return nil
	}
	*p = Position(n)
	return nil
}

// Media is the document the media/{isbn} endpoint returns.
type Media struct {
	ISBN            string   `json:"isbn"`
	Title           string   `json:"title,omitempty"`
	SeriesName      string   `json:"seriesName,omitempty"`
	SeriesPosition  Position `json:"seriesPosition,omitempty"`
	Publisher       string   `json:"publisher,omitempty"`
	PublicationDate string   `json:"publicationDate,omitempty"`
	Language        string   `json:"language,omitempty"`
	Authors         string   `json:"authors,omitempty"`
	Narrators       string   `json:"narrators,omitempty"`
	Genres          string   `json:"genres,omitempty"`
	PrimaryGenre    string   `json:"primaryGenre,omitempty"`
	Audience        string   `json:"audience,omitempty"`
	MediaType       string   `json:"mediaType,omitempty"`
	Images          []Image  `json:"images,omitempty"`
	Description     string   `json:"description,omitempty"`
	Message         string   `json:"message,omitempty"`
}

// lookup is what gets cached per ISBN, including the fact that OneClick
// does not have it.
type lookup struct {
	Media    *Media `json:"media,omitempty"`
	NotFound bool   `json:"not_found,omitempty"`
}

// API is a OneClick client bound to one library.
type API struct {
	client    *vendors.Client
	libraryID string
}

// NewAPI creates a client. apiKey is OneClick's pre-encoded basic token.
func NewAPI(baseURL, apiKey, libraryID string, opts ...vendors.Option) *API {
	opts = append([]vendors.Option{
		vendors.WithHeader("Authorization", "Basic "+apiKey),
		vendors.WithHeader("Accept-Media", "complete"),
	}, opts...)
	return &API{
		client:    vendors.NewClient("OneClick", strings.TrimSuffix(baseURL, "/")+"/v1", opts...),
		libraryID: libraryID,
	}
}

// MetadataByISBN returns the media document for isbn, or nil when the
// library's catalog does not contain it.
func (a *API) MetadataByISBN(ctx context.Context, isbn string) (*Media, error) {
	if isbn == "" {
		return nil, fmt.Errorf("need an ISBN to look up OneClick metadata")
	}
	res, _, err := cache.GetOrFetchWithTTL(cache.OneClickTable, a.libraryID+"/"+isbn,
		func() (*lookup, error) { return a.fetch(ctx, isbn) },
		cache.SelectNegativeCacheTTL(func(l *lookup) bool { return l.NotFound }),
	)
	if err != nil {
		return nil, err
	}
	return res.Media, nil
}

func (a *API) fetch(ctx context.Context, isbn string) (*lookup, error) {
	path := fmt.Sprintf("/libraries/%s/media/%s", url.PathEscape(a.libraryID), url.PathEscape(isbn))
	resp, err := a.client.GetRaw(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	var m Media
	if err := json.Unmarshal(resp.Body, &m); err != nil {
		return nil, fmt.Errorf("OneClick response for %s not parseable (HTTP %d): %w", isbn, resp.StatusCode, err)
	}
	if m.Message != "" {
		for _, prefix := range notInCatalogPrefixes {
			if strings.HasPrefix(m.Message, prefix) {
				return &lookup{NotFound: true}, nil
			}
		}
		return nil, fmt.Errorf("OneClick lookup of %s in library %s failed: %s", isbn, a.libraryID, m.Message)
	}
	if m.ISBN == "" && m.Title == "" {
		return nil, fmt.Errorf("OneClick response for %s is empty (HTTP %d)", isbn, resp.StatusCode)
	}
	return &lookup{Media: &m}, nil
}

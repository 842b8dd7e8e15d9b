// Package overdrive looks up title metadata in the Overdrive API and feeds
// it to the coverage engine.
package overdrive

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/lepinkainen/folio/internal/cache"
	"github.com/lepinkainen/folio/internal/errors"
	"github.com/lepinkainen/folio/internal/vendors"
)

// Error codes Overdrive puts in the body of a failed lookup.
const (
	ErrorCodeNotFound    = "NotFound"
	ErrorCodeInvalidGUID = "InvalidGuid"
)

// Link is a hypermedia link in an Overdrive document.
type Link struct {
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
}

type Creator struct {
	Role   string `json:"role"`
	Name   string `json:"name"`
	FileAs string `json:"fileAs"`
}

type Value struct {
	Value string `json:"value"`
}

type Language struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

type Format struct {
	ID string `json:"id"`
}

// Product is the metadata document of one title.
type Product struct {
	ID               string          `json:"id"`
	Title            string          `json:"title,omitempty"`
	SortTitle        string          `json:"sortTitle,omitempty"`
	Subtitle         string          `json:"subtitle,omitempty"`
	Series           string          `json:"series,omitempty"`
	Publisher        string          `json:"publisher,omitempty"`
	PublishDate      string          `json:"publishDate,omitempty"`
	Languages        []Language      `json:"languages,omitempty"`
	Creators         []Creator       `json:"creators,omitempty"`
	Subjects         []Value         `json:"subjects,omitempty"`
	Keywords         []Value         `json:"keywords,omitempty"`
	MediaType        string          `json:"mediaType,omitempty"`
	Formats          []Format        `json:"formats,omitempty"`
	Images           map[string]Link `json:"images,omitempty"`
	ShortDescription string          `json:"shortDescription,omitempty"`
	FullDescription  string          `json:"fullDescription,omitempty"`
	ErrorCode        string          `json:"errorCode,omitempty"`
}

// Failed reports whether Overdrive rejected the lookup.
func (p *Product) Failed() bool {
	return p.ErrorCode == ErrorCodeNotFound || p.ErrorCode == ErrorCodeInvalidGUID
}

type library struct {
	CollectionToken string `json:"collectionToken"`
}

// API is an Overdrive client bound to one library's collection.
type API struct {
	client    *vendors.Client
	libraryID string

	mu              sync.Mutex
	collectionToken string
}

// NewAPI creates a client that authenticates with a bearer token.
func NewAPI(baseURL, token, libraryID string, opts ...vendors.Option) *API {
	opts = append([]vendors.Option{vendors.WithHeader("Authorization", "Bearer "+token)}, opts...)
	return &API{
		client:    vendors.NewClient("Overdrive", baseURL, opts...),
		libraryID: libraryID,
	}
}

// CollectionToken returns the token of the library's collection. It is
// looked up once per API and kept in the response cache between runs.
func (a *API) CollectionToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.collectionToken != "" {
		return a.collectionToken, nil
	}

	lib, _, err := cache.GetOrFetch(cache.OverdriveTable, "library/"+a.libraryID, func() (library, error) {
		var lib library
		if err := a.client.GetJSON(ctx, "/v1/libraries/"+url.PathEscape(a.libraryID), nil, &lib); err != nil {
			return lib, fmt.Errorf("looking up library %s: %w", a.libraryID, err)
		}
		if lib.CollectionToken == "" {
			return lib, fmt.Errorf("library %s has no collection token", a.libraryID)
		}
		return lib, nil
	})
	if err != nil {
		return "", err
	}
	a.collectionToken = lib.CollectionToken
	return a.collectionToken, nil
}

// MetadataLookup fetches the metadata document of the title with the given
// Overdrive ID. Rejected IDs come back as a Product with an ErrorCode and
// are cached for the shorter negative TTL.
func (a *API) MetadataLookup(ctx context.Context, overdriveID string) (*Product, error) {
	token, err := a.CollectionToken(ctx)
	if err != nil {
		return nil, err
	}

	product, _, err := cache.GetOrFetchWithTTL(cache.OverdriveTable, token+"/"+overdriveID,
		func() (*Product, error) { return a.fetchMetadata(ctx, token, overdriveID) },
		cache.SelectNegativeCacheTTL(func(p *Product) bool { return p.Failed() }),
	)
	return product, err
}

func (a *API) fetchMetadata(ctx context.Context, token, overdriveID string) (*Product, error) {
	path := fmt.Sprintf("/v1/collections/%s/products/%s/metadata", url.PathEscape(token), url.PathEscape(overdriveID))

	var p Product
	err := a.client.GetJSON(ctx, path, nil, &p)
	switch {
	case err == nil:
		return &p, nil
	case stdErrors.Is(err, errors.ErrNotFound):
		return &Product{ID: overdriveID, ErrorCode: ErrorCodeNotFound}, nil
	case stdErrors.Is(err, errors.ErrInvalidIdentifier):
		return &Product{ID: overdriveID, ErrorCode: ErrorCodeInvalidGUID}, nil
	}
	return nil, err
}

package lane

import "strconv"

// Page sizes.
const (
	DefaultPageSize      = 50
	DefaultSearchSize    = 10
	DefaultFeaturedSize  = 10
	DefaultCrawlableSize = 100
)

// Pagination selects a window of a result set and remembers what it learned
// about the result set once a page is loaded.
type Pagination struct {
	Offset int
	Size   int

	totalSize    int
	totalKnown   bool
	thisPageSize int
	pageLoaded   bool
}

// NewPagination returns a window of size items starting at offset.
func NewPagination(offset, size int) *Pagination {
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Pagination{Offset: max(offset, 0), Size: size}
}

// DefaultPagination is the first page at the default size.
func DefaultPagination() *Pagination {
	return NewPagination(0, DefaultPageSize)
}

// Items lists the pagination settings as URL parameters.
func (p *Pagination) Items() []Item {
	return []Item{
		{"after", strconv.Itoa(p.Offset)},
		{"size", strconv.Itoa(p.Size)},
	}
}

// QueryString renders Items in order.
func (p *Pagination) QueryString() string {
	return "after=" + strconv.Itoa(p.Offset) + "&size=" + strconv.Itoa(p.Size)
}

// FirstPage is the first page at the same size.
func (p *Pagination) FirstPage() *Pagination {
	return NewPagination(0, p.Size)
}

// NextPage is the following page, or nil when there is none.
func (p *Pagination) NextPage() *Pagination {
	if !p.HasNextPage() {
		return nil
	}
	return NewPagination(p.Offset+p.Size, p.Size)
}

// PreviousPage is the preceding page, or nil on the first page.
func (p *Pagination) PreviousPage() *Pagination {
	if p.Offset <= 0 {
		return nil
	}
	return NewPagination(max(p.Offset-p.Size, 0), p.Size)
}

// HasNextPage uses the total size when known, otherwise the size of the
// loaded page. With neither, it assumes there is more.
func (p *Pagination) HasNextPage() bool {
	if p.totalKnown {
		return p.Offset+p.Size < p.totalSize
	}
	if p.pageLoaded {
		return p.thisPageSize > 0
	}
	return true
}

// SetTotalSize records the size of the whole result set.
func (p *Pagination) SetTotalSize(n int) {
	p.totalSize = n
	p.totalKnown = true
}

// TotalSize returns the size of the whole result set, if known.
func (p *Pagination) TotalSize() (int, bool) {
	return p.totalSize, p.totalKnown
}

// PageLoaded records that a page of n items was fetched.
func (p *Pagination) PageLoaded(n int) {
	p.thisPageSize = n
	p.pageLoaded = true
}

// IsLoaded reports whether PageLoaded has been called.
func (p *Pagination) IsLoaded() bool { return p.pageLoaded }

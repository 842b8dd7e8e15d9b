package lane

import (
	"cmp"
	"context"
	"encoding/binary"
	"hash/fnv"
	"slices"
	"strings"
	"time"

	"github.com/lepinkainen/folio/internal/model"
)

// Doc is a work as the search index sees it: the work plus the circulation
// and list membership of its license pool.
type Doc struct {
	Work              *model.Work
	DataSource        string
	OpenAccess        bool
	LicensesOwned     int
	LicensesAvailable int
	AvailabilityTime  time.Time
	CustomListIDs     []int64
	// FeaturedListIDs are the lists the work is featured on.
	FeaturedListIDs []int64
}

// Available reports whether a patron could borrow the work right now.
func (d *Doc) Available() bool {
	return d.OpenAccess || d.LicensesAvailable > 0
}

// Hit is one search result.
type Hit struct {
	WorkID int64   `json:"work_id"`
	Score  float64 `json:"score,omitempty"`
}

// Searcher finds works matching a filter.
type Searcher interface {
	QueryWorks(ctx context.Context, f *Filter, p *Pagination) ([]Hit, error)
	WorksByID(ctx context.Context, ids []int64) ([]*model.Work, error)
}

// MultiSearcher runs several filters in one round trip, with the same
// pagination applied to each.
type MultiSearcher interface {
	QueryWorksMulti(ctx context.Context, filters []*Filter, p *Pagination) ([][]Hit, error)
}

// Search runs f over docs and returns the page p selects. A nil p returns
// every match. p learns the total size and the size of the loaded page.
func Search(docs []*Doc, f *Filter, p *Pagination) []Hit {
	type scored struct {
		doc   *Doc
		score float64
	}
	var relevant []int64
	if f.Featured != nil {
		relevant = f.relevantLists()
	}

	matches := make([]scored, 0, len(docs))
	for _, d := range docs {
		if !f.Match(d) {
			continue
		}
		s := scored{doc: d}
		if f.Featured != nil {
			s.score = f.Featured.Score(d, relevant)
		}
		matches = append(matches, s)
	}

	if f.Featured != nil {
		slices.SortStableFunc(matches, func(a, b scored) int {
			if c := cmp.Compare(b.score, a.score); c != 0 {
				return c
			}
			return cmp.Compare(a.doc.Work.ID, b.doc.Work.ID)
		})
	} else {
		slices.SortStableFunc(matches, func(a, b scored) int {
			return compareDocs(a.doc, b.doc, f.Order, f.OrderAscending)
		})
	}

	start, end := 0, len(matches)
	if p != nil {
		p.SetTotalSize(len(matches))
		start = min(p.Offset, len(matches))
		end = min(start+p.Size, len(matches))
	}
	hits := make([]Hit, 0, end-start)
	for _, m := range matches[start:end] {
		hits = append(hits, Hit{WorkID: m.doc.Work.ID, Score: m.score})
	}
	if p != nil {
		p.PageLoaded(len(hits))
	}
	return hits
}

// compareDocs orders by the primary field, then author, title and id
// ascending.
func compareDocs(a, b *Doc, order string, ascending bool) int {
	if order != "" {
		c := compareField(a, b, order)
		if !ascending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	for _, field := range []string{"sort_author", "sort_title", "work_id"} {
		if field == order {
			continue
		}
		if c := compareField(a, b, field); c != 0 {
			return c
		}
	}
	return 0
}

func compareField(a, b *Doc, field string) int {
	wa, wb := a.Work, b.Work
	switch field {
	case "sort_title":
		return strings.Compare(wa.SortTitle, wb.SortTitle)
	case "sort_author":
		return strings.Compare(wa.SortAuthor, wb.SortAuthor)
	case "last_update_time":
		return wa.LastUpdate.Compare(wb.LastUpdate)
	case "availability_time":
		return a.AvailabilityTime.Compare(b.AvailabilityTime)
	case "series_position":
		return cmp.Compare(wa.SeriesPosition, wb.SeriesPosition)
	case "random":
		return cmp.Compare(wa.Random, wb.Random)
	case "work_id":
		return cmp.Compare(wa.ID, wb.ID)
	}
	return 0
}

// seededRandom maps (seed, workID) onto [0, 1) so the same seed always
// ranks the same works the same way.
func seededRandom(seed, workID int64) float64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(seed))
	binary.LittleEndian.PutUint64(buf[8:], uint64(workID))
	h := fnv.New64a()
	h.Write(buf[:])
	return float64(h.Sum64()>>11) / (1 << 53)
}

// MemoryIndex is a Searcher over docs held in memory.
type MemoryIndex struct {
	Docs []*Doc
}

func (m *MemoryIndex) QueryWorks(_ context.Context, f *Filter, p *Pagination) ([]Hit, error) {
	return Search(m.Docs, f, p), nil
}

func (m *MemoryIndex) WorksByID(_ context.Context, ids []int64) ([]*model.Work, error) {
	var out []*model.Work
	for _, d := range m.Docs {
		if slices.Contains(ids, d.Work.ID) {
			out = append(out, d.Work)
		}
	}
	return out, nil
}

// WorksForHits loads the works behind hits, in hit order. Hits whose work
// cannot be loaded are dropped.
func WorksForHits(ctx context.Context, s Searcher, hits []Hit) ([]*model.Work, error) {
	if len(hits) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.WorkID
	}
	works, err := s.WorksByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*model.Work, len(works))
	for _, w := range works {
		byID[w.ID] = w
	}
	out := make([]*model.Work, 0, len(hits))
	for _, h := range hits {
		if w, ok := byID[h.WorkID]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

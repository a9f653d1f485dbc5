package circulation

import (
	"context"
	"fmt"

	"github.com/dharsanguruparan/BookWise/internal/apperr"
	"github.com/dharsanguruparan/BookWise/internal/cache"
	"github.com/dharsanguruparan/BookWise/internal/model"
	"github.com/dharsanguruparan/BookWise/internal/repository"
)

// RecordView is a record plus its display status as of today.
type RecordView struct {
	model.BorrowRecord
	DisplayStatus model.DisplayStatus `json:"displayStatus"`
}

// RecordPage is one page of records.
type RecordPage struct {
	Records []RecordView `json:"records"`
	Total   int64        `json:"total"`
	Page    int          `json:"page"`
	Limit   int          `json:"limit"`
}

type cachedRecords struct {
	Records []model.BorrowRecord `json:"records"`
	Total   int64                `json:"total"`
}

// List returns records matching f. Raw rows are cached; display status is
// computed on every call since it depends on today's date.
func (s *Service) List(ctx context.Context, f repository.RecordFilter) (*RecordPage, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("invalid status %q", f.Status))
	}
	f.Page = f.Page.Normalize()
	key := cache.ListKey(cache.KeyBorrowRecords,
		"page", f.Page.Page, "limit", f.Page.Limit,
		"user", f.UserID, "book", f.BookID, "status", f.Status)
	raw, err := cache.Fetch(ctx, s.cache, key, cache.TTLShort, func(ctx context.Context) (cachedRecords, error) {
		recs, total, err := s.store.ListRecords(ctx, f)
		return cachedRecords{Records: recs, Total: total}, err
	})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	today := s.Today()
	page := &RecordPage{Total: raw.Total, Page: f.Page.Page, Limit: f.Page.Limit, Records: make([]RecordView, 0, len(raw.Records))}
	for i := range raw.Records {
		page.Records = append(page.Records, RecordView{
			BorrowRecord:  raw.Records[i],
			DisplayStatus: raw.Records[i].DisplayStatus(today),
		})
	}
	return page, nil
}

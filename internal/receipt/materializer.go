package receipt

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/BookWise/internal/apperr"
	"github.com/dharsanguruparan/BookWise/internal/model"
	"github.com/dharsanguruparan/BookWise/internal/repository"
	"github.com/dharsanguruparan/BookWise/internal/signing"
)

// Options tunes a Materializer.
type Options struct {
	PublicBaseURL string
	LinkTTL       time.Duration
	Now           func() time.Time
}

// Materializer renders, stores and serves receipts.
type Materializer struct {
	repo   *repository.Store
	docs   Store
	signer *signing.Signer
	logger *zap.Logger

	baseURL string
	linkTTL time.Duration
	now     func() time.Time
}

// NewMaterializer constructs a Materializer.
func NewMaterializer(repo *repository.Store, docs Store, signer *signing.Signer, logger *zap.Logger, opts Options) *Materializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LinkTTL <= 0 {
		opts.LinkTTL = 7 * 24 * time.Hour
	}
	return &Materializer{
		repo:    repo,
		docs:    docs,
		signer:  signer,
		logger:  logger,
		baseURL: opts.PublicBaseURL,
		linkTTL: opts.LinkTTL,
		now:     opts.Now,
	}
}

// Document renders the receipt of a record and stores it, returning the
// receipt id and bytes. Calling it again for the same record rewrites the
// same bytes.
func (m *Materializer) Document(ctx context.Context, recordID string) (string, []byte, error) {
	rec, err := m.repo.GetRecord(ctx, recordID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil, apperr.ErrRecordNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("load record: %w", err)
	}
	pdf, err := m.Write(ctx, rec)
	if err != nil {
		return "", nil, err
	}
	return rec.ReceiptCode, pdf, nil
}

// Write renders the receipt of a record loaded with Book and User and
// stores it under the record's receipt code.
func (m *Materializer) Write(ctx context.Context, rec *model.BorrowRecord) ([]byte, error) {
	pdf, err := Render(DataFor(rec))
	if err != nil {
		return nil, err
	}
	if err := m.docs.Put(ctx, rec.ReceiptCode, pdf); err != nil {
		return nil, err
	}
	m.logger.Info("receipt stored", zap.String("record_id", rec.ID), zap.String("receipt_id", rec.ReceiptCode), zap.Int("bytes", len(pdf)))
	return pdf, nil
}

// Materialize stores the receipt of a record and returns its id.
func (m *Materializer) Materialize(ctx context.Context, recordID string) (string, error) {
	id, _, err := m.Document(ctx, recordID)
	return id, err
}

// Open looks a stored receipt up by id. Ids with characters outside
// [A-Za-z0-9-] are treated as unknown.
func (m *Materializer) Open(ctx context.Context, receiptID string) ([]byte, error) {
	if !ValidID(receiptID) {
		return nil, apperr.ErrReceiptNotFound
	}
	data, err := m.docs.Get(ctx, receiptID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open receipt: %w", err)
	}
	return data, nil
}

// ShareURL returns a signed, expiring download link for a receipt.
func (m *Materializer) ShareURL(receiptID string) string {
	q := m.signer.SignedQuery(receiptID, m.now().Add(m.linkTTL))
	return m.baseURL + "/receipts/" + url.PathEscape(receiptID) + "?" + q.Encode()
}

// VerifyLink checks the signature parameters of a share link.
func (m *Materializer) VerifyLink(receiptID, expires, signature string) bool {
	return m.signer.Validate(receiptID, expires, signature, m.now())
}

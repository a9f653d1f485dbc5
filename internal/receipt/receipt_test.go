package receipt

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/BookWise/internal/apperr"
	"github.com/dharsanguruparan/BookWise/internal/database/dbtest"
	"github.com/dharsanguruparan/BookWise/internal/model"
	pdfutil "github.com/dharsanguruparan/BookWise/internal/pdf"
	"github.com/dharsanguruparan/BookWise/internal/repository"
	"github.com/dharsanguruparan/BookWise/internal/signing"
)

func sampleData() Data {
	return Data{
		ReceiptID:     "CMBE4S7VJ3QK2N8D5T0G",
		IssueDate:     model.Date(2024, time.January, 1),
		BorrowerName:  "Ada Lovelace",
		BorrowerEmail: "ada@uni.edu",
		UniversityID:  123456,
		Title:         "Dune",
		Author:        "Frank Herbert",
		Genre:         "Science Fiction",
		BorrowDate:    model.Date(2024, time.January, 1),
		DueDate:       model.Date(2024, time.January, 15),
		LoanDays:      14,
	}
}

func TestNewCode(t *testing.T) {
	a, b := NewCode(), NewCode()
	assert.Len(t, a, 20)
	assert.NotEqual(t, a, b)
	assert.True(t, ValidID(a))
}

func TestValidID(t *testing.T) {
	for _, id := range []string{"", "../secret", "a/b", "abc.pdf", "a b", "%2e%2e"} {
		assert.False(t, ValidID(id), id)
	}
	for _, id := range []string{"ABC123", "abc-def", "0"} {
		assert.True(t, ValidID(id), id)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	first, err := Render(sampleData())
	require.NoError(t, err)
	second, err := Render(sampleData())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(first, []byte("%PDF-")))
	assert.True(t, bytes.Equal(first, second))
}

func TestRenderedTextCarriesFields(t *testing.T) {
	data, err := Render(sampleData())
	require.NoError(t, err)
	doc, err := pdfutil.Extract(data)
	require.NoError(t, err)
	text := doc.Text()
	assert.Contains(t, text, "CMBE4S7VJ3QK2N8D5T0G")
	assert.Contains(t, text, "Dune")
	assert.Contains(t, text, "Ada Lovelace")
}

type harness struct {
	m     *Materializer
	store *FileStore
	rec   *model.BorrowRecord
	now   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.New(t)
	book := dbtest.Book(t, db, "Dune", 2)
	user := dbtest.User(t, db, model.AccountApproved)
	rec := &model.BorrowRecord{
		UserID: user.ID, BookID: book.ID, ReceiptCode: NewCode(),
		BorrowDate: model.Date(2024, time.January, 1), DueDate: model.Date(2024, time.January, 15),
		Status: model.StatusBorrowed, CreatedAt: time.Date(2024, time.January, 1, 10, 30, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(rec).Error)

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	h := &harness{store: store, rec: rec, now: time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)}
	h.m = NewMaterializer(repository.New(db), store, signing.NewSigner([]byte("secret")), zap.NewNop(), Options{
		PublicBaseURL: "https://library.example.edu",
		LinkTTL:       time.Hour,
		Now:           func() time.Time { return h.now },
	})
	return h
}

func TestMaterializeAndOpen(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	id, first, err := h.m.Document(ctx, h.rec.ID)
	require.NoError(t, err)
	assert.Equal(t, h.rec.ReceiptCode, id)

	id, err = h.m.Materialize(ctx, h.rec.ID)
	require.NoError(t, err)
	stored, err := h.m.Open(ctx, id)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, stored))
}

func TestMaterializeMissingRecord(t *testing.T) {
	_, err := newHarness(t).m.Materialize(context.Background(), "nope")
	assert.True(t, errors.Is(err, apperr.ErrRecordNotFound))
}

func TestOpenRejectsUnknownAndUnsafeIDs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	for _, id := range []string{"UNKNOWN", "../../etc/passwd", "a/b"} {
		_, err := h.m.Open(ctx, id)
		assert.True(t, errors.Is(err, apperr.ErrReceiptNotFound), id)
	}
}

func TestShareURL(t *testing.T) {
	h := newHarness(t)
	link, err := url.Parse(h.m.ShareURL(h.rec.ReceiptCode))
	require.NoError(t, err)
	assert.Equal(t, "library.example.edu", link.Host)
	assert.Equal(t, h.rec.ReceiptCode, path.Base(link.Path))

	q := link.Query()
	assert.True(t, h.m.VerifyLink(h.rec.ReceiptCode, q.Get(signing.ParamExpires), q.Get(signing.ParamSignature)))
	assert.False(t, h.m.VerifyLink("OTHER", q.Get(signing.ParamExpires), q.Get(signing.ParamSignature)))

	h.now = h.now.Add(2 * time.Hour)
	assert.False(t, h.m.VerifyLink(h.rec.ReceiptCode, q.Get(signing.ParamExpires), q.Get(signing.ParamSignature)))
}

func TestFileStoreMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Get(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

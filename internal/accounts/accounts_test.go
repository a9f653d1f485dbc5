package accounts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/dharsanguruparan/BookWise/internal/apperr"
	"github.com/dharsanguruparan/BookWise/internal/cache"
	"github.com/dharsanguruparan/BookWise/internal/database/dbtest"
	"github.com/dharsanguruparan/BookWise/internal/inventory"
	"github.com/dharsanguruparan/BookWise/internal/model"
	"github.com/dharsanguruparan/BookWise/internal/notify"
	"github.com/dharsanguruparan/BookWise/internal/repository"
)

type sent struct {
	event notify.Event
	to    string
	data  notify.Data
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) NotifyUser(_ context.Context, ev notify.Event, user *model.User, data notify.Data) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{ev, user.Email, data})
}

func (r *recorder) events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, s := range r.sent {
		out = append(out, s.event)
	}
	return out
}

func newService(t *testing.T) (*Service, *recorder, *gorm.DB) {
	t.Helper()
	db := dbtest.New(t)
	rec := &recorder{}
	svc := NewService(repository.New(db), inventory.NewLedger(db, zap.NewNop()), cache.NewMemory(), rec, zap.NewNop())
	svc.cost = bcrypt.MinCost
	return svc, rec, db
}

func registration() Registration {
	return Registration{FullName: "Ada Lovelace", Email: " Ada@Uni.edu ", UniversityID: 4242, Password: "analytical"}
}

func TestRegister(t *testing.T) {
	svc, rec, _ := newService(t)
	user, err := svc.Register(context.Background(), registration())
	require.NoError(t, err)

	assert.Equal(t, "ada@uni.edu", user.Email)
	assert.Equal(t, model.AccountPending, user.Status)
	assert.Equal(t, model.RoleUser, user.Role)
	assert.NotEqual(t, "analytical", user.PasswordHash)
	assert.True(t, CheckPassword(user, "analytical"))
	assert.False(t, CheckPassword(user, "wrong"))
	assert.Equal(t, []notify.Event{notify.EventWelcome}, rec.events())
}

func TestRegisterDuplicateAndValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	_, err := svc.Register(ctx, registration())
	require.NoError(t, err)

	dup := registration()
	dup.UniversityID = 9999
	_, err = svc.Register(ctx, dup)
	assert.True(t, errors.Is(err, apperr.ErrEmailTaken))

	for _, mutate := range []func(*Registration){
		func(r *Registration) { r.FullName = " " },
		func(r *Registration) { r.Email = "not-an-email" },
		func(r *Registration) { r.UniversityID = 0 },
		func(r *Registration) { r.Password = "short" },
	} {
		in := registration()
		in.Email = "other@uni.edu"
		mutate(&in)
		_, err := svc.Register(ctx, in)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "%+v", in)
	}
}

func TestCreateByAdminIsApproved(t *testing.T) {
	svc, rec, _ := newService(t)
	user, err := svc.CreateByAdmin(context.Background(), registration())
	require.NoError(t, err)
	assert.Equal(t, model.AccountApproved, user.Status)
	assert.Empty(t, rec.events())
}

func TestReviewHappensOnce(t *testing.T) {
	ctx := context.Background()
	svc, rec, _ := newService(t)
	user, err := svc.Register(ctx, registration())
	require.NoError(t, err)

	// Warm the detail cache so a stale entry would show up.
	_, err = svc.Get(ctx, user.ID)
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccountApproved, approved.Status)

	_, err = svc.Reject(ctx, user.ID)
	assert.True(t, errors.Is(err, apperr.ErrAccountAlreadyReviewed))
	_, err = svc.Approve(ctx, user.ID)
	assert.True(t, errors.Is(err, apperr.ErrAccountAlreadyReviewed))

	got, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccountApproved, got.Status)
	assert.Equal(t, []notify.Event{notify.EventWelcome, notify.EventAccountApproved}, rec.events())

	_, err = svc.Review(ctx, "missing", model.AccountRejected)
	assert.True(t, errors.Is(err, apperr.ErrUserNotFound))
	_, err = svc.Review(ctx, user.ID, model.AccountPending)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestChangeRole(t *testing.T) {
	ctx := context.Background()
	svc, rec, db := newService(t)
	user := dbtest.User(t, db, model.AccountApproved)

	for _, role := range []model.Role{model.RoleAdmin, model.RoleUser, model.RoleAdmin} {
		got, err := svc.ChangeRole(ctx, user.ID, role)
		require.NoError(t, err)
		assert.Equal(t, role, got.Role)
	}
	require.Len(t, rec.sent, 3)
	assert.Equal(t, "ADMIN", rec.sent[2].data.NewRole)

	_, err := svc.ChangeRole(ctx, user.ID, "OWNER")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.ChangeRole(ctx, "missing", model.RoleAdmin)
	assert.True(t, errors.Is(err, apperr.ErrUserNotFound))
}

func TestMakeAdmin(t *testing.T) {
	ctx := context.Background()
	svc, _, db := newService(t)
	user := dbtest.User(t, db, model.AccountApproved)

	got, err := svc.MakeAdmin(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, got.Role)

	_, err = svc.MakeAdmin(ctx, "nobody@uni.edu")
	assert.True(t, errors.Is(err, apperr.ErrUserNotFound))
}

func TestDeleteRestocksOpenLoans(t *testing.T) {
	ctx := context.Background()
	svc, _, db := newService(t)
	book := dbtest.Book(t, db, "Dune", 2)
	user := dbtest.User(t, db, model.AccountApproved)
	other := dbtest.User(t, db, model.AccountApproved)

	require.NoError(t, db.Model(&model.Book{}).Where("id = ?", book.ID).Update("available_copies", 0).Error)
	for i, u := range []*model.User{user, other} {
		require.NoError(t, db.Create(&model.BorrowRecord{
			UserID: u.ID, BookID: book.ID, ReceiptCode: []string{"R1", "R2"}[i],
			BorrowDate: model.Date(2024, time.January, 1), DueDate: model.Date(2024, time.January, 15),
			Status: model.StatusBorrowed,
		}).Error)
	}

	require.NoError(t, svc.Delete(ctx, user.ID))
	assert.Equal(t, 1, dbtest.Available(t, db, book.ID))

	var count int64
	require.NoError(t, db.Model(&model.BorrowRecord{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&model.BorrowRecord{}).Where("user_id = ?", other.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	_, err := svc.Get(ctx, user.ID)
	assert.True(t, errors.Is(err, apperr.ErrUserNotFound))
	assert.True(t, errors.Is(svc.Delete(ctx, user.ID), apperr.ErrUserNotFound))
}

func TestList(t *testing.T) {
	ctx := context.Background()
	svc, _, db := newService(t)
	dbtest.User(t, db, model.AccountPending)
	dbtest.User(t, db, model.AccountApproved)

	page, err := svc.List(ctx, repository.UserFilter{Status: model.AccountPending})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	_, err = svc.Register(ctx, registration())
	require.NoError(t, err)
	page, err = svc.List(ctx, repository.UserFilter{Status: model.AccountPending})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)

	_, err = svc.List(ctx, repository.UserFilter{Status: "BANNED"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.List(ctx, repository.UserFilter{SortBy: "email"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestListIncludesBorrowCounts(t *testing.T) {
	ctx := context.Background()
	svc, _, db := newService(t)
	book := dbtest.Book(t, db, "Dune", 2)
	reader := dbtest.User(t, db, model.AccountApproved)
	dbtest.User(t, db, model.AccountApproved)
	require.NoError(t, db.Create(&model.BorrowRecord{
		UserID: reader.ID, BookID: book.ID, ReceiptCode: "COUNT1",
		BorrowDate: model.Date(2024, time.May, 1), DueDate: model.Date(2024, time.May, 15),
		Status: model.StatusBorrowed,
	}).Error)

	page, err := svc.List(ctx, repository.UserFilter{SortBy: repository.SortByDate})
	require.NoError(t, err)
	require.Len(t, page.Users, 2)
	assert.Equal(t, reader.ID, page.Users[0].ID)
	assert.EqualValues(t, 1, page.Users[0].BooksBorrowed)
	assert.Zero(t, page.Users[1].BooksBorrowed)
}

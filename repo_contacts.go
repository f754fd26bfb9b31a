package contacts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ContactFilter narrows owner scoped listings.
type ContactFilter struct {
	Query  string
	Limit  int
	Offset int
}

// Contacts is the contact book repository. Every query is scoped to the
// owning user; a contact id from another account behaves like a missing
// record.
type Contacts interface {
	repository.Repository[*Contact]

	GetOwned(ctx context.Context, ownerID, id uuid.UUID) (*Contact, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, filter ContactFilter) ([]*Contact, error)
	UpcomingBirthdays(ctx context.Context, ownerID uuid.UUID, days int) ([]*Contact, error)
	UpdateOwned(ctx context.Context, ownerID uuid.UUID, record *Contact) (*Contact, error)
	DeleteOwned(ctx context.Context, ownerID, id uuid.UUID) error
}

type contactsRepo struct {
	repository.Repository[*Contact]
	db *bun.DB
}

var (
	_ Contacts                        = (*contactsRepo)(nil)
	_ repository.Repository[*Contact] = (*contactsRepo)(nil)
)

func NewContactsRepository(db *bun.DB) Contacts {
	repo := repository.NewRepository[*Contact](db, repository.ModelHandlers[*Contact]{
		NewRecord: func() *Contact { return &Contact{} },
		GetID: func(c *Contact) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Contact, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
	})

	return &contactsRepo{
		Repository: repo,
		db:         db,
	}
}

func (r *contactsRepo) GetOwned(ctx context.Context, ownerID, id uuid.UUID) (*Contact, error) {
	record := &Contact{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.user_id = ?", ownerID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (r *contactsRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, filter ContactFilter) ([]*Contact, error) {
	records := []*Contact{}

	q := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", ownerID).
		Order("last_name ASC", "first_name ASC")

	if filter.Query != "" {
		pattern := "%" + filter.Query + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereOr("?TableAlias.first_name LIKE ?", pattern).
				WhereOr("?TableAlias.last_name LIKE ?", pattern).
				WhereOr("?TableAlias.email LIKE ?", pattern)
		})
	}

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list contacts")
	}

	return records, nil
}

// UpcomingBirthdays returns contacts whose birthday falls within the next
// N days. The window wraps year boundaries, so it is computed in Go rather
// than in dialect specific date SQL.
func (r *contactsRepo) UpcomingBirthdays(ctx context.Context, ownerID uuid.UUID, days int) ([]*Contact, error) {
	records := []*Contact{}
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", ownerID).
		Where("?TableAlias.birthday IS NOT NULL").
		Scan(ctx)

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load contacts for birthday window")
	}

	now := time.Now()
	upcoming := records[:0]
	for _, c := range records {
		if c.Birthday == nil {
			continue
		}
		if birthdayInWindow(*c.Birthday, now, days) {
			upcoming = append(upcoming, c)
		}
	}

	return upcoming, nil
}

func (r *contactsRepo) UpdateOwned(ctx context.Context, ownerID uuid.UUID, record *Contact) (*Contact, error) {
	if _, err := r.GetOwned(ctx, ownerID, record.ID); err != nil {
		return nil, err
	}

	record.UserID = ownerID

	return r.Repository.UpdateTx(ctx, r.db, record,
		repository.UpdateByID(record.ID.String()),
		repository.UpdateSkipZeroValues(),
	)
}

func (r *contactsRepo) DeleteOwned(ctx context.Context, ownerID, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*Contact)(nil)).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.user_id = ?", ownerID).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete contact")
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

// birthdayInWindow reports whether the next anniversary of birthday falls
// within [from, from+days]. Feb 29 birthdays are observed on Mar 1 in non
// leap years.
func birthdayInWindow(birthday, from time.Time, days int) bool {
	if days < 0 {
		return false
	}

	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	end := start.AddDate(0, 0, days)

	next := time.Date(start.Year(), birthday.Month(), birthday.Day(), 0, 0, 0, 0, from.Location())
	if next.Before(start) {
		next = time.Date(start.Year()+1, birthday.Month(), birthday.Day(), 0, 0, 0, 0, from.Location())
	}

	return !next.Before(start) && !next.After(end)
}

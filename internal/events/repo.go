package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/pagination"
)

// Repository persists events, their organizer and guest sets, and the point
// budget counters.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// LockByIDWithTx reads the event under a row lock so budget and capacity
// checks hold until commit.
func (r *Repository) LockByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.Event, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var event models.Event
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&event, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *Repository) IsOrganizer(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	return r.IsOrganizerWithTx(r.db.WithContext(ctx), eventID, userID)
}

func (r *Repository) IsOrganizerWithTx(tx *gorm.DB, eventID, userID uuid.UUID) (bool, error) {
	var count int64
	err := tx.Model(&models.EventOrganizer{}).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) IsGuestWithTx(tx *gorm.DB, eventID, userID uuid.UUID) (bool, error) {
	var count int64
	err := tx.Model(&models.EventGuest{}).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) CountGuestsWithTx(tx *gorm.DB, eventID uuid.UUID) (int64, error) {
	var count int64
	err := tx.Model(&models.EventGuest{}).Where("event_id = ?", eventID).Count(&count).Error
	return count, err
}

func (r *Repository) CountGuests(ctx context.Context, eventID uuid.UUID) (int64, error) {
	return r.CountGuestsWithTx(r.db.WithContext(ctx), eventID)
}

// ListGuestIDsWithTx returns the current guest set in a stable order.
func (r *Repository) ListGuestIDsWithTx(tx *gorm.DB, eventID uuid.UUID) ([]uuid.UUID, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var ids []uuid.UUID
	err := tx.Model(&models.EventGuest{}).
		Where("event_id = ?", eventID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *Repository) ListGuestIDs(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	return r.ListGuestIDsWithTx(r.db.WithContext(ctx), eventID)
}

// IncrementAwardedWithTx consumes budget. The guard keeps awarded within the
// allocation even if a caller skipped the locked check.
func (r *Repository) IncrementAwardedWithTx(tx *gorm.DB, eventID uuid.UUID, amount int) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	res := tx.Model(&models.Event{}).
		Where("id = ? AND points_awarded + ? <= points_allocated", eventID, amount).
		UpdateColumn("points_awarded", gorm.Expr("points_awarded + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBudgetExceeded
	}
	return nil
}

func (r *Repository) UpdatesWithTx(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Model(&models.Event{}).Where("id = ?", id).Updates(fields).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", id).Delete(&models.EventGuest{}).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", id).Delete(&models.EventOrganizer{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Event{}, "id = ?", id).Error
	})
}

func (r *Repository) AddOrganizerWithTx(tx *gorm.DB, eventID, userID uuid.UUID) error {
	return tx.Create(&models.EventOrganizer{EventID: eventID, UserID: userID}).Error
}

func (r *Repository) AddGuestWithTx(tx *gorm.DB, eventID, userID uuid.UUID) error {
	return tx.Create(&models.EventGuest{EventID: eventID, UserID: userID}).Error
}

// RemoveOrganizer reports whether a row was deleted.
func (r *Repository) RemoveOrganizer(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("event_id = ? AND user_id = ?", eventID, userID).Delete(&models.EventOrganizer{})
	return res.RowsAffected > 0, res.Error
}

// RemoveGuest reports whether a row was deleted.
func (r *Repository) RemoveGuest(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("event_id = ? AND user_id = ?", eventID, userID).Delete(&models.EventGuest{})
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) ListOrganizers(ctx context.Context, eventID uuid.UUID) ([]PersonDTO, error) {
	return r.listPeople(ctx, "event_organizers", eventID)
}

func (r *Repository) ListGuests(ctx context.Context, eventID uuid.UUID) ([]PersonDTO, error) {
	return r.listPeople(ctx, "event_guests", eventID)
}

func (r *Repository) listPeople(ctx context.Context, table string, eventID uuid.UUID) ([]PersonDTO, error) {
	people := []PersonDTO{}
	err := r.db.WithContext(ctx).
		Table(table+" AS m").
		Select("u.id, u.utorid, u.name").
		Joins("JOIN users u ON u.id = m.user_id").
		Where("m.event_id = ?", eventID).
		Order("m.created_at ASC, u.utorid ASC").
		Scan(&people).Error
	return people, err
}

// OrganizersFor maps each event to its organizers in a single query.
func (r *Repository) OrganizersFor(ctx context.Context, eventIDs []uuid.UUID) (map[uuid.UUID][]PersonDTO, error) {
	out := make(map[uuid.UUID][]PersonDTO, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		EventID uuid.UUID
		ID      uuid.UUID
		Utorid  string
		Name    string
	}
	err := r.db.WithContext(ctx).
		Table("event_organizers AS m").
		Select("m.event_id, u.id, u.utorid, u.name").
		Joins("JOIN users u ON u.id = m.user_id").
		Where("m.event_id IN ?", eventIDs).
		Order("m.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.EventID] = append(out[row.EventID], PersonDTO{ID: row.ID, Utorid: row.Utorid, Name: row.Name})
	}
	return out, nil
}

// GuestCountsFor maps each event to its guest count in a single query.
func (r *Repository) GuestCountsFor(ctx context.Context, eventIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		EventID uuid.UUID
		Count   int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.EventGuest{}).
		Select("event_id, COUNT(*) AS count").
		Where("event_id IN ?", eventIDs).
		Group("event_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.EventID] = row.Count
	}
	return out, nil
}

// List returns one page of events. When onlyPublished is set unpublished
// events are hidden regardless of the filter.
func (r *Repository) List(ctx context.Context, filter ListFilter, onlyPublished bool, now time.Time) ([]models.Event, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Event{})
	if name := strings.TrimSpace(filter.Name); name != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if location := strings.TrimSpace(filter.Location); location != "" {
		query = query.Where("LOWER(location) LIKE ?", "%"+strings.ToLower(location)+"%")
	}
	if filter.Started != nil {
		if *filter.Started {
			query = query.Where("start_time <= ?", now)
		} else {
			query = query.Where("start_time > ?", now)
		}
	}
	if filter.Ended != nil {
		if *filter.Ended {
			query = query.Where("end_time <= ?", now)
		} else {
			query = query.Where("end_time > ?", now)
		}
	}
	if filter.ShowFull != nil && !*filter.ShowFull {
		query = query.Where("(capacity IS NULL OR capacity > (SELECT COUNT(*) FROM event_guests g WHERE g.event_id = events.id))")
	}
	switch {
	case onlyPublished:
		query = query.Where("published = ?", true)
	case filter.Published != nil:
		query = query.Where("published = ?", *filter.Published)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Event
	page := pagination.Params{Page: filter.Page, Limit: filter.Limit}
	if err := query.Scopes(page.Scope()).Order("start_time ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, count, nil
}

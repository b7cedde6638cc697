package billing

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// TimeEntryInput is the editable part of a time entry.
type TimeEntryInput struct {
	ClientID     ClientID
	WorkTypeID   WorkTypeID
	ProjectName  *string
	WorkDate     string
	MinutesSpent int64
	Description  string
}

// LogTime records billable work for a client.
func (s *Service) LogTime(ctx context.Context, in TimeEntryInput) (*TimeEntry, error) {
	entry, err := s.validateEntry(ctx, in)
	if err != nil {
		return nil, err
	}
	entry.CreatedAt = s.now().UTC()

	var saved *TimeEntry
	err = s.repo.WithTx(ctx, func(tx Tx) error {
		saved, err = tx.InsertTimeEntry(ctx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("time logged",
		zap.Int64("entry_id", int64(saved.ID)),
		zap.Int64("client_id", int64(saved.ClientID)),
		zap.Int64("minutes", saved.MinutesSpent))
	return saved, nil
}

// UpdateTimeEntry replaces the editable fields of an uninvoiced entry.
func (s *Service) UpdateTimeEntry(ctx context.Context, id TimeEntryID, in TimeEntryInput) (*TimeEntry, error) {
	entry, err := s.validateEntry(ctx, in)
	if err != nil {
		return nil, err
	}
	entry.ID = id

	err = s.repo.WithTx(ctx, func(tx Tx) error {
		current, err := tx.GetTimeEntry(ctx, id)
		if err != nil {
			return err
		}
		if current.IsInvoiced() {
			return ErrTimeEntryInvoiced
		}
		entry.CreatedAt = current.CreatedAt
		return tx.UpdateTimeEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteTimeEntry removes an uninvoiced entry.
func (s *Service) DeleteTimeEntry(ctx context.Context, id TimeEntryID) error {
	return s.repo.WithTx(ctx, func(tx Tx) error {
		current, err := tx.GetTimeEntry(ctx, id)
		if err != nil {
			return err
		}
		if current.IsInvoiced() {
			return ErrTimeEntryInvoiced
		}
		return tx.DeleteTimeEntry(ctx, id)
	})
}

// ListUninvoicedTimeEntries returns the entries a preview would consume.
func (s *Service) ListUninvoicedTimeEntries(ctx context.Context, clientID ClientID, startDate, endDate string) ([]TimeEntry, error) {
	period, err := parsePeriod(startDate, endDate)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	return s.repo.ListUninvoicedTimeEntries(ctx, clientID, period)
}

func (s *Service) validateEntry(ctx context.Context, in TimeEntryInput) (TimeEntry, error) {
	if in.MinutesSpent <= 0 {
		return TimeEntry{}, invalid("minutes_spent", "must be positive")
	}
	workDate, err := parseDateField("work_date", in.WorkDate)
	if err != nil {
		return TimeEntry{}, err
	}
	if _, err := s.repo.GetClient(ctx, in.ClientID); err != nil {
		return TimeEntry{}, err
	}
	types, err := s.repo.ListWorkTypes(ctx)
	if err != nil {
		return TimeEntry{}, err
	}
	if !hasWorkType(types, in.WorkTypeID) {
		return TimeEntry{}, workTypeNotFound(in.WorkTypeID)
	}

	return TimeEntry{
		ClientID:     in.ClientID,
		WorkTypeID:   in.WorkTypeID,
		ProjectName:  NormalizeProject(in.ProjectName),
		WorkDate:     workDate,
		MinutesSpent: in.MinutesSpent,
		Description:  in.Description,
	}, nil
}

func hasWorkType(types []WorkType, id WorkTypeID) bool {
	for _, wt := range types {
		if wt.ID == id {
			return true
		}
	}
	return false
}

// IsTimeEntryInvoiced reports whether err is the claimed-entry conflict.
func IsTimeEntryInvoiced(err error) bool {
	return errors.Is(err, ErrTimeEntryInvoiced)
}

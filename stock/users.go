package stock

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
)

// CreateUser registers a user. Empty dose times get the defaults.
func (s *StockService) CreateUser(ctx context.Context, email string, times DoseTimes) (*User, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &ValidationError{Field: "email", Message: "must be a valid address"}
	}
	times = times.withDefaults()
	if err := ValidateDoseTimes(times); err != nil {
		return nil, err
	}

	u := &User{
		ID:        UserID(uuid.NewString()),
		Email:     strings.ToLower(email),
		DoseTimes: times,
		CreatedAt: s.Clock.Now(),
	}
	if err := s.Store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *StockService) GetUser(ctx context.Context, id UserID) (*User, error) {
	return s.Store.GetUser(ctx, id)
}

// UpdateDoseTimes replaces the user's dose-time preferences.
func (s *StockService) UpdateDoseTimes(ctx context.Context, id UserID, times DoseTimes) (*User, error) {
	times = times.withDefaults()
	if err := ValidateDoseTimes(times); err != nil {
		return nil, err
	}
	if err := s.Store.UpdateDoseTimes(ctx, id, times); err != nil {
		return nil, err
	}
	return s.Store.GetUser(ctx, id)
}

// ValidateDoseTimes checks every slot is a valid HH:MM.
func ValidateDoseTimes(times DoseTimes) error {
	var errs ValidationErrors
	for _, tp := range Timepoints {
		if _, err := ParseClock(times.At(tp)); err != nil {
			errs = append(errs, &ValidationError{Field: "dose_time_" + string(tp), Message: "must be HH:MM"})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (d DoseTimes) withDefaults() DoseTimes {
	if strings.TrimSpace(d.Morning) == "" {
		d.Morning = DefaultDoseTimes.Morning
	}
	if strings.TrimSpace(d.Noon) == "" {
		d.Noon = DefaultDoseTimes.Noon
	}
	if strings.TrimSpace(d.Evening) == "" {
		d.Evening = DefaultDoseTimes.Evening
	}
	return d
}

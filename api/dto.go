/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the stock domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DECIMALS:
  Stock and dosage values are decimal.Decimal. They are written as JSON
  strings ("12.5") and accepted as either strings or numbers.

VALIDATION:
  Validation is done in stock.StockService, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/oliverbenduhn/tabletto/stock"
)

// =============================================================================
// USERS
// =============================================================================

type DoseTimesDTO struct {
	Morning string `json:"morning"`
	Noon    string `json:"noon"`
	Evening string `json:"evening"`
}

func (d DoseTimesDTO) toDomain() stock.DoseTimes {
	return stock.DoseTimes{Morning: d.Morning, Noon: d.Noon, Evening: d.Evening}
}

type UserDTO struct {
	ID        string       `json:"id"`
	Email     string       `json:"email"`
	DoseTimes DoseTimesDTO `json:"dose_times"`
	CreatedAt time.Time    `json:"created_at"`
}

func toUserDTO(u *stock.User) UserDTO {
	return UserDTO{
		ID:    string(u.ID),
		Email: u.Email,
		DoseTimes: DoseTimesDTO{
			Morning: u.DoseTimes.Morning,
			Noon:    u.DoseTimes.Noon,
			Evening: u.DoseTimes.Evening,
		},
		CreatedAt: u.CreatedAt,
	}
}

type CreateUserRequest struct {
	Email     string       `json:"email"`
	DoseTimes DoseTimesDTO `json:"dose_times"`
}

// =============================================================================
// MEDICATIONS
// =============================================================================

type MedicationDTO struct {
	ID                   string          `json:"id"`
	UserID               string          `json:"user_id"`
	Name                 string          `json:"name"`
	DosageMorning        decimal.Decimal `json:"dosage_morning"`
	DosageNoon           decimal.Decimal `json:"dosage_noon"`
	DosageEvening        decimal.Decimal `json:"dosage_evening"`
	IntervalDays         int             `json:"interval_days"`
	DosagePerInterval    decimal.Decimal `json:"dosage_per_interval"`
	TabletsPerPackage    decimal.Decimal `json:"tablets_per_package"`
	CurrentStock         decimal.Decimal `json:"current_stock"`
	WarningThresholdDays int             `json:"warning_threshold_days"`
	LastStockMeasuredAt  string          `json:"last_stock_measured_at,omitempty"`
	NextDueAt            string          `json:"next_due_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`

	Stats StatsDTO `json:"stats"`
}

// StatsDTO is the read-only projection of how long the stock lasts.
type StatsDTO struct {
	DailyConsumption decimal.Decimal  `json:"daily_consumption"`
	DaysRemaining    *decimal.Decimal `json:"days_remaining"`
	DepletionDate    *time.Time       `json:"depletion_date"`
	WarningStatus    string           `json:"warning_status"`
}

func toMedicationDTO(m stock.Medication, now time.Time, loc *time.Location) MedicationDTO {
	p := stock.Project(m, now, loc)
	return MedicationDTO{
		ID:                   string(m.ID),
		UserID:               string(m.UserID),
		Name:                 m.Name,
		DosageMorning:        m.Dosage.Morning,
		DosageNoon:           m.Dosage.Noon,
		DosageEvening:        m.Dosage.Evening,
		IntervalDays:         m.IntervalDays,
		DosagePerInterval:    m.DosagePerInterval,
		TabletsPerPackage:    m.TabletsPerPackage,
		CurrentStock:         m.CurrentStock,
		WarningThresholdDays: m.WarningThresholdDays,
		LastStockMeasuredAt:  m.LastStockMeasuredAt.String(),
		NextDueAt:            m.NextDueAt.String(),
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
		Stats: StatsDTO{
			DailyConsumption: p.DailyRate,
			DaysRemaining:    p.DaysRemaining,
			DepletionDate:    p.DepletionDate,
			WarningStatus:    string(p.Status),
		},
	}
}

type CreateMedicationRequest struct {
	Name                 string           `json:"name"`
	DosageMorning        decimal.Decimal  `json:"dosage_morning"`
	DosageNoon           decimal.Decimal  `json:"dosage_noon"`
	DosageEvening        decimal.Decimal  `json:"dosage_evening"`
	IntervalDays         int              `json:"interval_days"`
	DosagePerInterval    *decimal.Decimal `json:"dosage_per_interval"`
	TabletsPerPackage    decimal.Decimal  `json:"tablets_per_package"`
	CurrentStock         decimal.Decimal  `json:"current_stock"`
	WarningThresholdDays int              `json:"warning_threshold_days"`
	NextDueAt            *time.Time       `json:"next_due_at"`
}

func (r CreateMedicationRequest) toInput() stock.MedicationInput {
	in := stock.MedicationInput{
		Name: r.Name,
		Dosage: stock.Dosage{
			Morning: r.DosageMorning,
			Noon:    r.DosageNoon,
			Evening: r.DosageEvening,
		},
		IntervalDays:         r.IntervalDays,
		TabletsPerPackage:    r.TabletsPerPackage,
		CurrentStock:         r.CurrentStock,
		WarningThresholdDays: r.WarningThresholdDays,
		NextDueAt:            r.NextDueAt,
	}
	if r.DosagePerInterval != nil {
		in.DosagePerInterval = *r.DosagePerInterval
	}
	return in
}

// UpdateMedicationRequest is a partial update; omitted fields are kept.
type UpdateMedicationRequest struct {
	Name                 *string          `json:"name"`
	DosageMorning        *decimal.Decimal `json:"dosage_morning"`
	DosageNoon           *decimal.Decimal `json:"dosage_noon"`
	DosageEvening        *decimal.Decimal `json:"dosage_evening"`
	IntervalDays         *int             `json:"interval_days"`
	DosagePerInterval    *decimal.Decimal `json:"dosage_per_interval"`
	TabletsPerPackage    *decimal.Decimal `json:"tablets_per_package"`
	CurrentStock         *decimal.Decimal `json:"current_stock"`
	WarningThresholdDays *int             `json:"warning_threshold_days"`
	NextDueAt            *time.Time       `json:"next_due_at"`
}

func (r UpdateMedicationRequest) toPatch() stock.MedicationPatch {
	return stock.MedicationPatch{
		Name:                 r.Name,
		DosageMorning:        r.DosageMorning,
		DosageNoon:           r.DosageNoon,
		DosageEvening:        r.DosageEvening,
		IntervalDays:         r.IntervalDays,
		DosagePerInterval:    r.DosagePerInterval,
		TabletsPerPackage:    r.TabletsPerPackage,
		CurrentStock:         r.CurrentStock,
		WarningThresholdDays: r.WarningThresholdDays,
		NextDueAt:            r.NextDueAt,
	}
}

// StockActionRequest is a manual stock action. Amount is optional for
// add_package (defaults to the package size) and required for set_stock.
type StockActionRequest struct {
	Action string           `json:"action"`
	Amount *decimal.Decimal `json:"amount"`
}

// =============================================================================
// HISTORY
// =============================================================================

type HistoryDTO struct {
	ID            string          `json:"id"`
	MedicationID  string          `json:"medication_id"`
	Action        string          `json:"action"`
	OldStock      decimal.Decimal `json:"old_stock"`
	NewStock      decimal.Decimal `json:"new_stock"`
	Timestamp     time.Time       `json:"timestamp"`
	OccurrenceDay string          `json:"occurrence_day,omitempty"`
}

func toHistoryDTOs(entries []stock.HistoryEntry) []HistoryDTO {
	out := make([]HistoryDTO, len(entries))
	for i, e := range entries {
		out[i] = HistoryDTO{
			ID:            string(e.ID),
			MedicationID:  string(e.MedicationID),
			Action:        string(e.Action),
			OldStock:      e.OldStock,
			NewStock:      e.NewStock,
			Timestamp:     e.Timestamp,
			OccurrenceDay: e.OccurrenceDay,
		}
	}
	return out
}

// StockActionResponse returns the updated medication with the entries the
// action wrote.
type StockActionResponse struct {
	Medication MedicationDTO `json:"medication"`
	History    []HistoryDTO  `json:"history"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

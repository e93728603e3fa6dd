package store

import (
	"errors"

	"parking-finder-backend/internal/model"
)

// ErrNoEligibleLot is returned when every known lot is restricted or none exist.
var ErrNoEligibleLot = errors.New("no eligible parking lot found")

// ErrUserNotFound is returned when a user id is unknown.
var ErrUserNotFound = errors.New("user not found")

// ErrUserExists is returned when signing up with an id that is taken.
var ErrUserExists = errors.New("user already exists")

// LotItem represents a single parking lot record from the upstream feed.
type LotItem struct {
	ID           string            `json:"id"`
	StreetName   string            `json:"street_name"`
	Latitude     float64           `json:"latitude"`
	Longitude    float64           `json:"longitude"`
	Status       string            `json:"status"`
	LastUpdated  string            `json:"last_updated"`
	Restrictions []RestrictionItem `json:"restrictions"`
}

// RestrictionItem is a restriction window attached to a LotItem.
type RestrictionItem struct {
	Day              string `json:"day"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	TimeLimitMinutes *int   `json:"time_limit_minutes"`
}

// AssignResult is the outcome of a status report.
type AssignResult struct {
	Lot            model.ParkingLot
	PreviousStatus model.LotStatus
	// Credits is the reporter's balance after the reward, when a reporter was given.
	Credits *int
}

// Changed reports whether the report flipped the lot to available.
func (r AssignResult) Changed() bool {
	return r.PreviousStatus != model.LotStatusAvailable
}

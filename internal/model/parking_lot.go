package model

// LotStatus is the availability state of a parking lot.
type LotStatus string

const (
	LotStatusUnset      LotStatus = ""
	LotStatusAvailable  LotStatus = "available"
	LotStatusRestricted LotStatus = "restricted"
)

// ParkingLot represents a parking location on a street block.
type ParkingLot struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	StreetName  string    `gorm:"size:256;not null" json:"street_name"`
	Latitude    float64   `gorm:"not null" json:"latitude"`
	Longitude   float64   `gorm:"not null" json:"longitude"`
	Status      LotStatus `gorm:"size:32;not null" json:"status"`
	LastUpdated string    `gorm:"size:64" json:"last_updated"`
}

// TableName pins the table name shared with the existing schema.
func (ParkingLot) TableName() string {
	return "parking_lots"
}

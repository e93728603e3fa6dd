package model

// BlockRestriction is a time window during which parking on a block is limited.
// BlockID is not a foreign key; windows may reference lots that no longer exist.
type BlockRestriction struct {
	ID               int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	BlockID          string `gorm:"size:64;index;not null" json:"block_id"`
	Day              string `gorm:"size:16" json:"day"`
	StartTime        string `gorm:"size:8" json:"start_time"`
	EndTime          string `gorm:"size:8" json:"end_time"`
	TimeLimitMinutes *int   `json:"time_limit_minutes"`
}

func (BlockRestriction) TableName() string {
	return "block_restrictions"
}

package models

// --- User ---

// User carries the play statistics maintained by contest finalization.
// Accounts themselves are owned by the external auth layer.
type User struct {
	ID           int64   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name         *string `gorm:"size:64" json:"name,omitempty"`
	TotalPlayed  int     `gorm:"not null;default:0" json:"totalPlayed"`
	ContestWon   int     `gorm:"not null;default:0" json:"contestWon"`
	TotalEarning int64   `gorm:"not null;default:0" json:"totalEarning"`
	CreatedTs    int64   `gorm:"not null" json:"createdTs"`
	UpdatedTs    int64   `gorm:"not null" json:"updatedTs"`
}

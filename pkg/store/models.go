package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type MagazineModel struct {
	ID               string `gorm:"primaryKey"`
	UserID           string `gorm:"not null;index"`
	Title            string `gorm:"not null"`
	Description      string
	Category         string `gorm:"not null;index"`
	FileName         string `gorm:"not null"`
	FileSize         int64  `gorm:"not null"`
	FileKey          string `gorm:"not null"`
	CoverKey         string
	PageCount        int       `gorm:"not null"`
	IsDownloadable   bool      `gorm:"not null"`
	IsReadableOnline bool      `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null;index"`

	Artist *ProfileModel `gorm:"foreignKey:UserID;references:ID"`
}

func (MagazineModel) TableName() string { return "magazines" }

type ProfileModel struct {
	ID          string `gorm:"primaryKey"`
	ArtistName  string
	FullName    string
	Bio         string
	Website     string
	SocialLinks datatypes.JSONMap
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time
}

func (ProfileModel) TableName() string { return "profiles" }

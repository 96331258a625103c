package models

import "time"

type Library struct {
	ID         uint      `json:"-" gorm:"primarykey"`
	Name       string    `json:"name" gorm:"uniqueIndex;not null"`
	IsEditable bool      `json:"is_editable" gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"-"`
}

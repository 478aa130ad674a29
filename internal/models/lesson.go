package models

import "time"

// Lesson описывает урок из каталога преподавателя.
type Lesson struct {
	ID          int       `json:"id"`
	OwnerUID    string    `json:"owner_uid"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	VideoURL    string    `json:"video_url,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// DummyLesson используется для приема урока из JSON-запроса.
type DummyLesson struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	VideoURL    string `json:"video_url" validate:"omitempty,url"`
	IsActive    *bool  `json:"is_active"`
}

package models

import "time"

// Reward описывает награду, которую преподаватель выдает ученикам.
type Reward struct {
	ID        int       `json:"id"`
	OwnerUID  string    `json:"owner_uid"`
	Title     string    `json:"title"`
	Cost      int       `json:"cost"`
	CreatedAt time.Time `json:"created_at"`
}

// DummyReward используется для приема награды из JSON-запроса.
type DummyReward struct {
	Title string `json:"title" validate:"required,max=200"`
	Cost  int    `json:"cost" validate:"gte=0"`
}

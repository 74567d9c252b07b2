package model

type Link struct {
	BaseModel
	ShortCode string `gorm:"uniqueIndex;size:64;not null" json:"shortCode"`
	TargetURL string `gorm:"size:2048;not null" json:"targetUrl"`
	Clicks    int64  `gorm:"default:0;not null" json:"clicks"`
	Disabled  bool   `json:"disabled"`
}

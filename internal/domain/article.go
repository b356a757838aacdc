package domain

import "time"

// Article is a generated, illustrated article owned by one user.
// Images holds one slot per section of HTML; an empty slot marks a section
// whose image could not be generated.
type Article struct {
	ID         string    `json:"_id" bson:"-"`
	OwnerID    string    `json:"userId" bson:"userId"`
	Title      string    `json:"title" bson:"title"`
	Keyword    string    `json:"keyword,omitempty" bson:"keyword,omitempty"`
	HTML       string    `json:"html" bson:"content"`
	CoverImage string    `json:"coverImage" bson:"coverImage"`
	Images     []string  `json:"images" bson:"images"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
}

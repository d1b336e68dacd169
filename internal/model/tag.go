package model

// Tag is a globally unique label shared by any number of recipes.
type Tag struct {
	ID   string `json:"id"   db:"id"`
	Name string `json:"name" db:"name"`
}

package model

import (
	"strconv"
	"strings"
	"time"
)

// PlaceholderFilename is the reserved name of the stock image every file set
// carries. Recipes without a thumbnail point at it, and uploads may not use it.
const PlaceholderFilename = "placeholder.png"

// MaxImageFileNameLength is the column limit for RecipeImage.FileName.
const MaxImageFileNameLength = 150

// SkillLevel is the difficulty a recipe is rated at.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
	SkillPro          SkillLevel = "pro"
)

// SkillLevels lists every level in ascending order. The index of a level is
// its ordinal, which forms may submit instead of the name.
var SkillLevels = []SkillLevel{SkillBeginner, SkillIntermediate, SkillAdvanced, SkillPro}

// ParseSkillLevel accepts a level name (any case) or its ordinal. Anything
// else, including the empty string, is SkillBeginner.
func ParseSkillLevel(s string) SkillLevel {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, lvl := range SkillLevels {
		if string(lvl) == s {
			return lvl
		}
	}
	if i, err := strconv.Atoi(s); err == nil && i >= 0 && i < len(SkillLevels) {
		return SkillLevels[i]
	}
	return SkillBeginner
}

// Recipe is a published recipe.
//
// ID is the internal primary key; UUID is the stable identifier used in URLs.
// (Name, UserID) is unique: one author cannot publish two recipes with the
// same name, but two authors can.
type Recipe struct {
	ID          string     `json:"id"          db:"id"`
	UUID        string     `json:"uuid"        db:"uuid"`
	Name        string     `json:"name"        db:"name"`
	Minutes     int        `json:"minutes"     db:"minutes"`
	SkillLevel  SkillLevel `json:"skillLevel"  db:"skill_level"`
	Calories    int        `json:"calories"    db:"calories"`
	Thumbnail   string     `json:"thumbnail"   db:"thumbnail"`
	Description string     `json:"description" db:"description"`
	Body        string     `json:"body"        db:"body"`
	UserID      string     `json:"userId"      db:"user_id"`
	Timestamp   time.Time  `json:"timestamp"   db:"timestamp"`
}

// RecipeImage is one uploaded picture belonging to a recipe.
type RecipeImage struct {
	ID       string `json:"id"       db:"id"`
	RecipeID string `json:"recipeId" db:"recipe_id"`
	FileName string `json:"fileName" db:"file_name"`
}

// ImageFileName returns the name to persist for an uploaded image. Names that
// do not fit the column are swapped for the placeholder instead of failing
// the whole upload.
func ImageFileName(name string) string {
	if len([]rune(name)) > MaxImageFileNameLength {
		return PlaceholderFilename
	}
	return name
}

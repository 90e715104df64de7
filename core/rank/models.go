package rank

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/dojokit/beltway/core"
)

// Category is a belt lineage. Ordinals are only comparable within one
// category; a youth ordinal says nothing about an adult one.
type Category string

const (
	CategoryYouth  Category = "YOUTH"
	CategoryAdult  Category = "ADULT"
	CategoryMaster Category = "MASTER"
)

var Categories = []Category{CategoryYouth, CategoryAdult, CategoryMaster}

// CategoryResolver maps a student to the belt lineage they progress on
// (typically by age). It is an external policy; the catalog never computes it.
type CategoryResolver func(studentID string) (Category, error)

// Rank is an immutable-per-version belt definition.
type Rank struct {
	ID               string    `json:"id" db:"id"`
	Code             string    `json:"code" db:"code"`
	Name             string    `json:"name" db:"name"`
	ColorHex         string    `json:"color_hex" db:"color_hex"`
	Category         Category  `json:"category" db:"category"`
	Ordinal          int       `json:"ordinal" db:"ordinal"`
	MaxDegrees       int       `json:"max_degrees" db:"max_degrees"`
	ClassesPerDegree int       `json:"classes_per_degree" db:"classes_per_degree"`
	IsActive         bool      `json:"is_active" db:"is_active"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// NewRank contains information needed to define a new Rank.
type NewRank struct {
	Code             string   `json:"code" validate:"required,max=20,rankcode"`
	Name             string   `json:"name" validate:"required,max=40"`
	ColorHex         string   `json:"color_hex" validate:"required,hexcolor"`
	Category         Category `json:"category" validate:"required,category"`
	Ordinal          int      `json:"ordinal" validate:"required,min=1"`
	MaxDegrees       int      `json:"max_degrees" validate:"min=0"`
	ClassesPerDegree int      `json:"classes_per_degree" validate:"required,min=1"`
}

func (nr *NewRank) Validate(validate *validator.Validate) error {
	nr.Code = core.CleanString(nr.Code, true /* upper */)
	nr.Name = core.CleanString(nr.Name)
	return validate.Struct(nr)
}

// GetFilter selects a single Rank; exactly one field must be set.
type GetFilter struct {
	ID   string
	Code string
}

// QueryFilter applies AND operation on available fields.
type QueryFilter struct {
	Category Category `query:"category"`
	IsActive *bool    `query:"is_active"`
}

var (
	categoryTag  = "category"
	categoryText = "must be one of YOUTH, ADULT, MASTER"
)

// InitValidators registers rank-specific validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(categoryTag, func(fl validator.FieldLevel) bool {
		val := Category(fl.Field().String())
		for _, cat := range Categories {
			if val == cat {
				return true
			}
		}
		return false
	})
	core.RegisterCustomTranslation(validate, translator, categoryTag, categoryText)
}

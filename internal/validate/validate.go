package validate

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/conea/internal/model"
)

// v is the package-level validator. Custom tags are registered in init
// before the first call to Struct.
var v = validator.New()

func init() {
	v.RegisterValidation("notiftype", func(fl validator.FieldLevel) bool {
		return model.Type(fl.Field().String()).Valid()
	})
	v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return model.Category(fl.Field().String()).Valid()
	})
	v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		return model.Priority(fl.Field().String()).Valid()
	})
}

// Struct validates s using its validate tags.
// Returns a human-readable error or nil.
func Struct(s any) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// Settings validates s, including that every category key is known.
func Settings(s model.NotificationSettings) error {
	if err := Struct(&s); err != nil {
		return err
	}
	for c := range s.Categories {
		if !c.Valid() {
			return fmt.Errorf("unknown category %q", c)
		}
	}
	return nil
}

// Filters validates the enum fields of f and the order of its date range.
func Filters(f model.Filters) error {
	switch {
	case f.Type != nil && !f.Type.Valid():
		return fmt.Errorf("unknown type %q", *f.Type)
	case f.Category != nil && !f.Category.Valid():
		return fmt.Errorf("unknown category %q", *f.Category)
	case f.Priority != nil && (*f.Priority == "" || !f.Priority.Valid()):
		return fmt.Errorf("unknown priority %q", *f.Priority)
	case f.DateRange != nil && !f.DateRange.Start.IsZero() && !f.DateRange.End.IsZero() &&
		f.DateRange.End.Before(f.DateRange.Start):
		return fmt.Errorf("date range ends before it starts")
	}
	return nil
}

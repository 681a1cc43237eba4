package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"rtodocs/internal/model"
	"rtodocs/internal/upload"
)

// Multipart text fields that accompany the file.
const (
	FieldEntityType   = "entity_type"
	FieldEntityID     = "entity_id"
	FieldDocumentType = "document_type"
)

type uploadMetadata struct {
	EntityType   string `form:"entity_type" validate:"required,entity_type"`
	EntityID     string `form:"entity_id" validate:"required,max=128"`
	DocumentType string `form:"document_type" validate:"required,document_type"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})
	_ = v.RegisterValidation("entity_type", func(fl validator.FieldLevel) bool {
		_, err := model.ParseEntityType(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("document_type", func(fl validator.FieldLevel) bool {
		_, err := model.ParseDocumentType(fl.Field().String())
		return err == nil
	})
	return v
}

type parsedMetadata struct {
	entityType   model.EntityType
	entityID     string
	documentType model.DocumentType
}

// parseMetadata validates the three text fields into closed enumerations.
func (s *documentService) parseMetadata(res *upload.Result) (parsedMetadata, error) {
	meta := uploadMetadata{
		EntityType:   res.Field(FieldEntityType),
		EntityID:     res.Field(FieldEntityID),
		DocumentType: res.Field(FieldDocumentType),
	}
	if err := s.validate.Struct(meta); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return parsedMetadata{}, err
		}
		return parsedMetadata{}, &ValidationError{Message: describe(verrs), Err: err}
	}

	// validated above
	et, _ := model.ParseEntityType(meta.EntityType)
	dt, _ := model.ParseDocumentType(meta.DocumentType)
	return parsedMetadata{entityType: et, entityID: meta.EntityID, documentType: dt}, nil
}

func describe(verrs validator.ValidationErrors) string {
	var missing, bad []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			missing = append(missing, fe.Field())
		case "max":
			bad = append(bad, fmt.Sprintf("%s is too long", fe.Field()))
		default:
			bad = append(bad, fmt.Sprintf("invalid %s %q", fe.Field(), fe.Value()))
		}
	}
	if len(missing) > 0 {
		return "missing required fields: " + strings.Join(missing, ", ")
	}
	return strings.Join(bad, "; ")
}

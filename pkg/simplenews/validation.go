package simplenews

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// validateStruct runs the struct tag rules and converts the first failure
// into a ValidationError.
func (s *service) validateStruct(v interface{}) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{
			Field:  toSnake(fe.Field()),
			Reason: describeTag(fe),
		}
	}
	return &ValidationError{Reason: err.Error()}
}

func (s *service) validateCreate(req CreateArticleRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	if strings.TrimSpace(req.Content) == "" {
		return &ValidationError{Field: "content", Reason: "is required"}
	}
	return s.validateStruct(req)
}

func (s *service) validateUpdate(req UpdateArticleRequest) error {
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be blank"}
	}
	if req.Content != nil && strings.TrimSpace(*req.Content) == "" {
		return &ValidationError{Field: "content", Reason: "must not be blank"}
	}
	if err := s.validateStruct(req); err != nil {
		return err
	}

	removing := make(map[uuid.UUID]bool, len(req.RemoveImageIDs))
	for _, id := range req.RemoveImageIDs {
		removing[id] = true
	}
	for _, id := range req.AddImageIDs {
		if removing[id] {
			return &ValidationError{
				Field:  "remove_image_ids",
				Reason: fmt.Sprintf("image %s is also being added", id),
			}
		}
	}
	return nil
}

func (s *service) validateReorder(items []ReorderItem) error {
	if len(items) == 0 {
		return &ValidationError{Field: "images", Reason: "must contain at least one item"}
	}

	images := make(map[uuid.UUID]bool, len(items))
	orders := make(map[int]bool, len(items))
	for _, item := range items {
		if err := s.validateStruct(item); err != nil {
			return err
		}
		if images[item.ImageID] {
			return &ValidationError{Field: "image_id", Reason: fmt.Sprintf("%s listed more than once", item.ImageID)}
		}
		if orders[item.SortOrder] {
			return &ValidationError{Field: "sort_order", Reason: fmt.Sprintf("%d listed more than once", item.SortOrder)}
		}
		images[item.ImageID] = true
		orders[item.SortOrder] = true
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte", "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q rule", fe.Tag())
	}
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(name[i-1] >= 'A' && name[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

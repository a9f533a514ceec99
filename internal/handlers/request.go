package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxOrderBodySize = 8 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxOrderBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeRequest reads a size-limited JSON body into dst, rejecting unknown fields and
// trailing data, then runs struct validation.
func decodeRequest(r *http.Request, dst any) error {
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		return err
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	if decoder.More() {
		return errors.New("invalid JSON payload: unexpected trailing data")
	}
	if err := requestValidator.Struct(dst); err != nil {
		return describeValidation(err)
	}
	return nil
}

func describeValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := jsonFieldName(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, field+" must be at most "+fe.Param()+" characters")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

type nameRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

type addonRequest struct {
	Category string `json:"category" validate:"required,max=128"`
	Name     string `json:"name" validate:"required,max=128"`
}

type rushRequest struct {
	ID string `json:"id" validate:"required,max=128"`
}

type packagingRequest struct {
	Title string `json:"title" validate:"required,max=128"`
}

type discountRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type consultationRequest struct {
	Enabled *bool   `json:"enabled" validate:"required"`
	Note    *string `json:"note" validate:"omitempty,max=2000"`
}

type modalRequest struct {
	Open *bool `json:"open" validate:"required"`
}

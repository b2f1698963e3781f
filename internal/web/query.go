package web

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"image-normalizer-go/internal/engine"

	"github.com/go-playground/validator/v10"
)

// ResizeQuery holds the query parameters of POST /api/resize.
type ResizeQuery struct {
	Width              int    `validate:"gte=0,lte=32768"`
	Height             int    `validate:"gte=0,lte=32768"`
	KeepAspectRatio    bool
	ForceMinDimensions bool
	Filter             string `validate:"omitempty,filter"`
}

// CompressQuery holds the query parameters of POST /api/compress.
type CompressQuery struct {
	TargetMB float64 `validate:"gt=0"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("filter", func(fl validator.FieldLevel) bool {
		_, err := engine.ParseFilter(fl.Field().String())
		return err == nil
	})
	return v
}

func parseResizeQuery(values url.Values) (ResizeQuery, error) {
	var q ResizeQuery
	var err error
	if q.Width, err = intParam(values, "width"); err != nil {
		return q, err
	}
	if q.Height, err = intParam(values, "height"); err != nil {
		return q, err
	}
	if q.KeepAspectRatio, err = boolParam(values, "keep_aspect_ratio"); err != nil {
		return q, err
	}
	if q.ForceMinDimensions, err = boolParam(values, "force_min_dimensions"); err != nil {
		return q, err
	}
	q.Filter = strings.ToLower(values.Get("filter"))
	return q, nil
}

func parseCompressQuery(values url.Values) (CompressQuery, error) {
	raw := values.Get("target_mb")
	if raw == "" {
		return CompressQuery{}, fmt.Errorf("target_mb is required")
	}
	target, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return CompressQuery{}, fmt.Errorf("invalid target_mb: %q", raw)
	}
	return CompressQuery{TargetMB: target}, nil
}

func intParam(values url.Values, name string) (int, error) {
	raw := values.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return n, nil
}

func boolParam(values url.Values, name string) (bool, error) {
	raw := values.Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return b, nil
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("validation failed: field '%s' must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("validation failed: field '%s' must satisfy %s", fe.Field(), fe.Tag())
}

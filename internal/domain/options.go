package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
)

var ErrInvalidOptions = errors.New("invalid options")

// Options is the typed option set of one job type variant.
type Options interface {
	JobType() JobType
	// Map is the normalized form stored on the job record.
	Map() map[string]any
}

// ThumbnailOptions holds the known keys of a thumbnail job. Zero values mean
// "use the configured default" (or the source format for Format).
type ThumbnailOptions struct {
	Width   int    `json:"width" validate:"omitempty,min=1,max=4096"`
	Height  int    `json:"height" validate:"omitempty,min=1,max=4096"`
	Quality int    `json:"quality" validate:"omitempty,min=1,max=100"`
	Format  string `json:"format" validate:"omitempty,oneof=jpeg jpg png gif bmp tiff"`
}

func (ThumbnailOptions) JobType() JobType {
	return JobTypeThumbnail
}

func (o ThumbnailOptions) Map() map[string]any {
	m := make(map[string]any, 4)
	if o.Width > 0 {
		m["width"] = o.Width
	}
	if o.Height > 0 {
		m["height"] = o.Height
	}
	if o.Quality > 0 {
		m["quality"] = o.Quality
	}
	if o.Format != "" {
		m["format"] = o.Format
	}
	return m
}

var optionsValidator = newOptionsValidator()

func newOptionsValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseOptions converts the free-form options map of a job into the typed
// options of its variant. Unknown keys are ignored.
func ParseOptions(jobType JobType, raw map[string]any) (Options, error) {
	switch jobType {
	case JobTypeThumbnail:
		return parseThumbnailOptions(raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedJobType, jobType)
	}
}

func parseThumbnailOptions(raw map[string]any) (ThumbnailOptions, error) {
	var opts ThumbnailOptions
	var err error

	if opts.Width, err = intOption(raw, "width"); err != nil {
		return opts, err
	}
	if opts.Height, err = intOption(raw, "height"); err != nil {
		return opts, err
	}
	if opts.Quality, err = intOption(raw, "quality"); err != nil {
		return opts, err
	}
	if v, ok := raw["format"]; ok && v != nil {
		s, err := cast.ToStringE(v)
		if err != nil {
			return opts, fmt.Errorf("%w: format must be a string", ErrInvalidOptions)
		}
		opts.Format = strings.ToLower(strings.TrimSpace(s))
	}

	if err := optionsValidator.Struct(opts); err != nil {
		return opts, describeValidation(err)
	}

	return opts, nil
}

func intOption(raw map[string]any, key string) (int, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, nil
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return 0, nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidOptions, key)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidOptions, key)
	}
	return n, nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "min":
		return fmt.Errorf("%w: %s must be at least %s", ErrInvalidOptions, fe.Field(), fe.Param())
	case "max":
		return fmt.Errorf("%w: %s must be at most %s", ErrInvalidOptions, fe.Field(), fe.Param())
	case "oneof":
		return fmt.Errorf("%w: %s must be one of [%s]", ErrInvalidOptions, fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%w: %s is invalid", ErrInvalidOptions, fe.Field())
	}
}

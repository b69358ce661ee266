package normalize

import (
	"fmt"
	"html"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/microcosm-cc/bluemonday"

	"github.com/nhle/malharro-cms/internal/model"
)

var (
	timeType      = reflect.TypeOf(time.Time{})
	readStateType = reflect.TypeOf(model.ReadState(""))
)

// Decode copies a normalized record into out, a pointer to a model
// struct, using its mapstructure tags. Timestamps are parsed from the
// CMS string formats and unknown fields are ignored.
func Decode(rec Record, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(stringToTime, boolToReadState),
		Result:     out,
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(rec)); err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	return nil
}

func stringToTime(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != timeType {
		return data, nil
	}
	s := data.(string)
	if s == "" {
		return time.Time{}, nil
	}
	return ParseTime(s)
}

// boolToReadState accepts records that store the read flag as a boolean.
func boolToReadState(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.Bool || to != readStateType {
		return data, nil
	}
	if data.(bool) {
		return model.Read, nil
	}
	return model.Unread, nil
}

var strict = bluemonday.StrictPolicy()

// PlainText strips markup from rich-text content and collapses
// whitespace.
func PlainText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(strict.Sanitize(s))), " ")
}

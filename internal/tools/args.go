package tools

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

type getCaseArgs struct {
	CaseID string `mapstructure:"caseId"`
}

type createCaseArgs struct {
	Title       string  `mapstructure:"title"`
	Description *string `mapstructure:"description"`
	CaseType    *string `mapstructure:"caseType"`
}

type updateCaseArgs struct {
	CaseID      string  `mapstructure:"caseId"`
	Title       *string `mapstructure:"title"`
	Description *string `mapstructure:"description"`
	Status      *string `mapstructure:"status"`
}

type searchCasesArgs struct {
	Query string `mapstructure:"query"`
}

// decodeArgs coerces loosely typed JSON arguments into out. Every tool
// parameter is a string, so scalars are rendered as text and structured
// values as their JSON encoding.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       stringifyHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func stringifyHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	switch v := data.(type) {
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return data, nil
}

package schemas_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
)

// TestConstants pins the string values that appear in scripts, logs and
// locator descriptions.
func TestConstants(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		constant interface{}
		expected string
	}{
		// StrategyKinds
		{"KindSelector", schemas.KindSelector, "selector"},
		{"KindRole", schemas.KindRole, "role"},
		{"KindText", schemas.KindText, "text"},
		{"KindLabel", schemas.KindLabel, "label"},
		{"KindPlaceholder", schemas.KindPlaceholder, "placeholder"},
		{"KindTestID", schemas.KindTestID, "testId"},
		{"KindTitle", schemas.KindTitle, "title"},
		{"KindAltText", schemas.KindAltText, "altText"},

		// WaitStates
		{"StateVisible", schemas.StateVisible, "visible"},
		{"StateHidden", schemas.StateHidden, "hidden"},
		{"StateAttached", schemas.StateAttached, "attached"},
		{"StateDetached", schemas.StateDetached, "detached"},

		// Element states
		{"StateChecked", schemas.StateChecked, "checked"},
		{"StateExpanded", schemas.StateExpanded, "expanded"},

		{"MethodNative", schemas.MethodNative, "native"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, reflect.ValueOf(tc.constant).String())
		})
	}
}

// TestActionResultJSONTags verifies the wire names of ActionResult.
func TestActionResultJSONTags(t *testing.T) {
	t.Parallel()
	expected := map[string]string{
		"Success": "success",
		"Method":  "method",
		"Handler": "handler,omitempty",
		"Error":   "error,omitempty",
	}
	typ := reflect.TypeOf(schemas.ActionResult{})
	assert.Equal(t, len(expected), typ.NumField())
	for field, tag := range expected {
		f, ok := typ.FieldByName(field)
		if assert.True(t, ok, "field %s missing", field) {
			assert.Equal(t, tag, f.Tag.Get("json"), "json tag of %s", field)
		}
	}
}

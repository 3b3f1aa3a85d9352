package response

import (
	"encoding/json"
	"fmt"
	"strconv"

	componenttest "github.com/ONSdigital/dp-component-test"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/stretchr/testify/assert"
)

// KeyValue is one expected top level member of a JSON response.
type KeyValue struct {
	Key   string
	Value string
}

func (r *Response) AssertStatus(expected int, msgAndArgs ...interface{}) error {
	f := &componenttest.ErrorFeature{}
	assert.Equal(f, expected, r.StatusCode, msgAndArgs...)
	return f.StepError()
}

func (r *Response) AssertContentType(expected string) error {
	f := &componenttest.ErrorFeature{}
	assert.Equal(f, expected, r.ContentType())
	return f.StepError()
}

// AssertOCSStatus checks the status code carried in the OCS meta block,
// which is independent from the HTTP status code.
func (r *Response) AssertOCSStatus(expected int) error {
	env, err := r.OCS()
	if err != nil {
		return err
	}
	f := &componenttest.ErrorFeature{}
	assert.Equal(f, expected, env.OCS.Meta.StatusCode, "unexpected OCS status code: %s", env.OCS.Meta.Message)
	return f.StepError()
}

// AssertJSONHasFields checks each expected key of the top level JSON value
// in order and reports the first mismatch only.
func (r *Response) AssertJSONHasFields(expected []KeyValue) error {
	var body interface{}
	if err := r.DecodeJSON(&body); err != nil {
		return err
	}
	f := &componenttest.ErrorFeature{}
	for _, kv := range expected {
		actual := Stringify(member(body, kv.Key))
		if !assert.Equal(f, kv.Value, actual, "Expected %s for key %s got %s", kv.Value, kv.Key, actual) {
			break
		}
	}
	return f.StepError()
}

// AssertJSONLength checks the number of members of the top level JSON array or object.
func (r *Response) AssertJSONLength(expected int) error {
	var body interface{}
	if err := r.DecodeJSON(&body); err != nil {
		return err
	}
	var actual int
	switch v := body.(type) {
	case []interface{}:
		actual = len(v)
	case map[string]interface{}:
		actual = len(v)
	default:
		return fmt.Errorf("response body is not a JSON array or object")
	}
	f := &componenttest.ErrorFeature{}
	assert.Equal(f, expected, actual, "Expected %d as length got %d", expected, actual)
	return f.StepError()
}

// AssertJSONPath evaluates a JSONPath expression against the body and
// compares the first result with expected.
func (r *Response) AssertJSONPath(expr, expected string) error {
	x, err := jp.ParseString(expr)
	if err != nil {
		return fmt.Errorf("invalid JSONPath %q: %w", expr, err)
	}
	data, err := oj.Parse(r.Bytes())
	if err != nil {
		return fmt.Errorf("decoding JSON response body: %w", err)
	}

	f := &componenttest.ErrorFeature{}
	results := x.Get(data)
	if !assert.NotEmpty(f, results, "no value found at %s", expr) {
		return f.StepError()
	}
	actual := Stringify(results[0])
	assert.Equal(f, expected, actual, "Expected %s at %s got %s", expected, expr, actual)
	return f.StepError()
}

func member(body interface{}, key string) interface{} {
	switch v := body.(type) {
	case map[string]interface{}:
		return v[key]
	case []interface{}:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(v) {
			return nil
		}
		return v[i]
	}
	return nil
}

// Stringify renders a decoded JSON value the way it is written in a feature
// table: true is "1", false and null are empty and numbers keep their text.
func Stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return ""
	case json.Number:
		return t.String()
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

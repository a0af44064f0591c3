package discovery

import (
	"fmt"
	"net/url"
	"reflect"
)

// buildParams converts SearchParams into board query parameters. Field names
// come from the boardparam tag when present, falling back to the yaml tag.
func buildParams(params *SearchParams) url.Values {
	q := url.Values{}
	fields := reflect.VisibleFields(reflect.TypeOf(*params))
	for _, field := range fields {
		// Our custom tag is using here.
		key := field.Tag.Get("boardparam")
		if key == "" {
			// Failover to default tag if our tag do not exist.
			key = field.Tag.Get("yaml")
		}
		if key == "" {
			continue
		}

		value := fmt.Sprintf("%v", reflect.ValueOf(params).Elem().FieldByIndex(field.Index).Interface())
		if value != "" && value != "0" {
			q.Set(key, value)
		}
	}

	return q
}

package payload

import (
	"net/url"
	"strconv"
	"strings"
)

/* EncodeForm serializes v as application/x-www-form-urlencoded
 * Nested values use bracket keys: data[booking][id]=7, data[tags][0]=a
 * Keys keep the map insertion order, null becomes an empty value
 */
func EncodeForm(v Value) ([]byte, error) {
	var pairs []string
	if v.Kind() == KindMap {
		for _, f := range v.fields {
			pairs = appendForm(pairs, f.Key, f.Value)
		}
	} else {
		pairs = appendForm(pairs, "value", v)
	}
	return []byte(strings.Join(pairs, "&")), nil
}

func appendForm(pairs []string, key string, v Value) []string {
	switch v.kind {
	case KindList:
		if len(v.items) == 0 {
			return append(pairs, formPair(key, ""))
		}
		for i, item := range v.items {
			pairs = appendForm(pairs, key+"["+strconv.Itoa(i)+"]", item)
		}
		return pairs
	case KindMap:
		if len(v.fields) == 0 {
			return append(pairs, formPair(key, ""))
		}
		for _, f := range v.fields {
			pairs = appendForm(pairs, key+"["+f.Key+"]", f.Value)
		}
		return pairs
	default:
		return append(pairs, formPair(key, scalarText(v)))
	}
}

func formPair(key, value string) string {
	return url.QueryEscape(key) + "=" + url.QueryEscape(value)
}

func scalarText(v Value) string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return string(v.num)
	case KindString:
		return v.str
	default:
		return ""
	}
}

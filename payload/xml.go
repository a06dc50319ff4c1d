package payload

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

var xmlNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

/* EncodeXML serializes v under a root element
 * Map keys become child elements, keys that are not valid XML names
 * are written as <field name="...">, list entries as <item>
 */
func EncodeXML(v Value, root string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	if err := encodeXMLElement(enc, root, v); err != nil {
		return nil, fmt.Errorf("encoding xml: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("flushing xml: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeXMLElement(enc *xml.Encoder, key string, v Value) error {
	start := xmlStart(key)
	if err := enc.EncodeToken(start); err != nil {
		return err
	}

	switch v.kind {
	case KindList:
		for _, item := range v.items {
			if err := encodeXMLElement(enc, "item", item); err != nil {
				return err
			}
		}
	case KindMap:
		for _, f := range v.fields {
			if err := encodeXMLElement(enc, f.Key, f.Value); err != nil {
				return err
			}
		}
	case KindNull:
	default:
		if err := enc.EncodeToken(xml.CharData(scalarText(v))); err != nil {
			return err
		}
	}

	return enc.EncodeToken(start.End())
}

func xmlStart(key string) xml.StartElement {
	if xmlNamePattern.MatchString(key) && !strings.HasPrefix(strings.ToLower(key), "xml") {
		return xml.StartElement{Name: xml.Name{Local: key}}
	}
	return xml.StartElement{
		Name: xml.Name{Local: "field"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "name"}, Value: key}},
	}
}

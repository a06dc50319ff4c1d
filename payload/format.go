package payload

import "fmt"

/* Format is the wire encoding of a delivery body
 * JSON is the default, form and XML are alternate encodings
 */
type Format int

const (
	JSON Format = iota + 1
	Form
	XML
)

// String returns the string representation of the format
func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case Form:
		return "form"
	case XML:
		return "xml"
	default:
		return "unknown"
	}
}

// NewFormat creates a Format from a string, empty means JSON and unknown values fail Validate
func NewFormat(s string) Format {
	switch s {
	case "json", "":
		return JSON
	case "form":
		return Form
	case "xml":
		return XML
	default:
		return 0
	}
}

// Validate checks if the format is valid
func (f Format) Validate() error {
	if f < JSON || f > XML {
		return fmt.Errorf("invalid payload format: %d", f)
	}
	return nil
}

// ContentType returns the Content-Type header value for the format
func (f Format) ContentType() string {
	switch f {
	case Form:
		return "application/x-www-form-urlencoded"
	case XML:
		return "application/xml"
	default:
		return "application/json"
	}
}

// Encode serializes v in this format
func (f Format) Encode(v Value) ([]byte, error) {
	switch f {
	case Form:
		return EncodeForm(v)
	case XML:
		return EncodeXML(v, "webhook")
	default:
		return v.MarshalJSON()
	}
}

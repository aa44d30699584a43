package protocol

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

var (
	ErrMalformedDocument = errors.New("malformed key/value document")
	ErrInvalidKey        = errors.New("invalid key")
)

// ParseKeyValues reads a key/value XML document. On error it returns an empty,
// non-nil property set alongside the error.
func ParseKeyValues(data []byte) (*Properties, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewProperties(), fmt.Errorf("%w: empty document", ErrMalformedDocument)
	}

	parsed := NewProperties()
	dec := xml.NewDecoder(bytes.NewReader(data))
	depth := 0
	sawRoot := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return NewProperties(), fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				if sawRoot {
					return NewProperties(), fmt.Errorf("%w: multiple root elements", ErrMalformedDocument)
				}
				sawRoot = true
			}
			if depth == 2 {
				value := ""
				for _, attr := range t.Attr {
					if attr.Name.Local == "value" {
						value = attr.Value
						break
					}
				}
				parsed.Set(t.Name.Local, value)
			}
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return NewProperties(), fmt.Errorf("%w: text outside root element", ErrMalformedDocument)
			}
		}
	}

	if !sawRoot {
		return NewProperties(), fmt.Errorf("%w: no root element", ErrMalformedDocument)
	}
	return parsed, nil
}

// MarshalKeyValues renders props as a key/value XML document under root
func MarshalKeyValues(root string, props *Properties) ([]byte, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty root name", ErrInvalidKey)
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	rootElem := xml.StartElement{Name: xml.Name{Local: root}}
	if err := enc.EncodeToken(rootElem); err != nil {
		return nil, err
	}

	if props != nil {
		for _, key := range props.Keys() {
			if key == "" {
				return nil, fmt.Errorf("%w: empty key", ErrInvalidKey)
			}
			value, _ := props.Get(key)
			elem := xml.StartElement{
				Name: xml.Name{Local: key},
				Attr: []xml.Attr{{Name: xml.Name{Local: "value"}, Value: value}},
			}
			if err := enc.EncodeToken(elem); err != nil {
				return nil, fmt.Errorf("encode %q: %w", key, err)
			}
			if err := enc.EncodeToken(elem.End()); err != nil {
				return nil, fmt.Errorf("encode %q: %w", key, err)
			}
		}
	}

	if err := enc.EncodeToken(rootElem.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package domain

import (
	"bytes"
	"encoding/json"
)

// RawArticle is one candidate entry of a source payload. Every field is
// optional; scalar fields decode from strings, numbers or booleans.
type RawArticle struct {
	Identifier FlexString    `json:"identifier"`
	URL        FlexString    `json:"url"`
	Name       FlexString    `json:"name"`
	Sections   *[]RawSection `json:"article_sections"`
}

// RawSection is a titled group of parts.
type RawSection struct {
	Name  FlexString `json:"name"`
	Parts *[]RawPart `json:"has_parts"`
}

// RawPart holds one paragraph value.
type RawPart struct {
	Value FlexString `json:"value"`
}

// FlexString decodes a JSON string, number or boolean into a string. Null
// decodes to "".
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*f = ""
		return nil
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*f = FlexString(data)
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

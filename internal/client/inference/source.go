package inference

import (
	"bytes"
	"encoding/json"
)

// Source is one citation. The backend sends either bare strings or objects
// with a title; objects without a usable title keep their raw JSON text.
type Source string

func (s *Source) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var str string
		if err := json.Unmarshal(trimmed, &str); err != nil {
			return err
		}
		*s = Source(str)
		return nil
	}

	var obj struct {
		Title *string `json:"title"`
	}
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &obj); err == nil && obj.Title != nil && *obj.Title != "" {
			*s = Source(*obj.Title)
			return nil
		}
	}
	*s = Source(trimmed)
	return nil
}

// Titles flattens sources to display strings.
func Titles(sources []Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}

package attrs

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrInvalidAttributes is returned for attributes that cannot be parsed or
// have an empty tag.
var ErrInvalidAttributes = errors.New("attrs: invalid attributes")

// ParsePairs parses "tag=value" arguments. The value is everything after the
// first '=' and may be empty.
func ParsePairs(pairs []string) ([]Attr, error) {
	out := make([]Attr, 0, len(pairs))
	for _, p := range pairs {
		tag, val, ok := strings.Cut(p, "=")
		if !ok {
			return nil, errors.Wrapf(ErrInvalidAttributes, "%q is not tag=value", p)
		}
		out = append(out, Attr{Tag: tag, Value: val})
	}
	return out, Validate(out)
}

// Validate rejects attributes with an empty tag.
func Validate(set []Attr) error {
	for i, a := range set {
		if a.Tag == "" {
			return errors.Wrapf(ErrInvalidAttributes, "attribute %d has an empty tag", i)
		}
	}
	return nil
}

// String formats set as "tag=value,tag=value" in the order given.
func String(set []Attr) string {
	var b strings.Builder
	for i, a := range set {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.Tag)
		b.WriteByte('=')
		b.WriteString(a.Value)
	}
	return b.String()
}

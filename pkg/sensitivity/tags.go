package sensitivity

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Struct tag keys.
const (
	// TagLog carries the sensitivity directive of a field:
	//
	//	Password string `log:"redact"`
	//	Card     string `log:"mask,last=4"`
	//	Internal string `log:"exclude"`
	TagLog = "log"

	// TagDiff set to "-" removes a field from change comparison.
	TagDiff = "diff"
)

// ErrInvalidTag is returned when a log tag cannot be parsed.
var ErrInvalidTag = errors.New("invalid log tag")

// Parse reads a directive in tag syntax. The empty string yields None.
func Parse(tag string) (Directive, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return None(), nil
	}

	head, rest, _ := strings.Cut(tag, ",")
	name, arg, hasArg := strings.Cut(head, "=")

	switch strings.TrimSpace(name) {
	case "-", "exclude":
		if rest != "" || hasArg {
			return None(), fmt.Errorf("%w: exclude takes no options: %q", ErrInvalidTag, tag)
		}
		return Exclude(), nil
	case "redact":
		if rest != "" {
			// Replacement texts may contain commas.
			arg = arg + "," + rest
		}
		return Redact(arg), nil
	case "mask":
		if hasArg {
			return None(), fmt.Errorf("%w: mask options go after a comma: %q", ErrInvalidTag, tag)
		}
		var opts []MaskOption
		if rest != "" {
			for _, opt := range strings.Split(rest, ",") {
				o, err := parseMaskOption(opt)
				if err != nil {
					return None(), fmt.Errorf("%w: %v", ErrInvalidTag, err)
				}
				opts = append(opts, o)
			}
		}
		return Mask(opts...), nil
	default:
		return None(), fmt.Errorf("%w: unknown directive %q", ErrInvalidTag, name)
	}
}

func parseMaskOption(opt string) (MaskOption, error) {
	key, val, ok := strings.Cut(strings.TrimSpace(opt), "=")
	if !ok {
		return nil, fmt.Errorf("mask option %q needs a value", opt)
	}
	switch key {
	case "first", "last":
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("mask option %q needs a non-negative integer", opt)
		}
		if key == "first" {
			return ShowFirst(n), nil
		}
		return ShowLast(n), nil
	case "pattern":
		return Pattern(val), nil
	default:
		return nil, fmt.Errorf("unknown mask option %q", key)
	}
}

// FieldDirective returns the directive declared on a struct field. A tag that
// does not parse fails closed and redacts the field.
func FieldDirective(sf reflect.StructField) Directive {
	tag, ok := sf.Tag.Lookup(TagLog)
	if !ok {
		return None()
	}
	d, err := Parse(tag)
	if err != nil {
		return Redact("")
	}
	return d
}

// CompareExcluded reports whether a struct field is removed from change
// comparison.
func CompareExcluded(sf reflect.StructField) bool {
	return strings.TrimSpace(sf.Tag.Get(TagDiff)) == "-"
}

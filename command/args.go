package command

import (
	"strconv"
	"strings"

	"kvstore/models"
)

// ArgType enumerates the argument kinds spec.md §4.10 declares for a
// Command's argument schema. Handlers consult these via the parse helpers
// below rather than a generic walker, since each command's argument shape
// is small and fixed.
type ArgType int

const (
	ArgKey ArgType = iota
	ArgPattern
	ArgShortString
	ArgLongString
	ArgInteger
	ArgDouble
	ArgUnixTime
	ArgBool
	ArgBlock
	ArgOneOf
)

func parseInteger(b []byte) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, models.ErrWrongType
	}
	return n, nil
}

func parseDouble(b []byte) (float64, error) {
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0, models.ErrNotAFloat
	}
	return f, nil
}

func parseUnixTimeMs(b []byte, seconds bool) (int64, error) {
	n, err := parseInteger(b)
	if err != nil {
		return 0, err
	}
	if seconds {
		n *= 1000
	}
	return n, nil
}

func parseBool(b []byte) (bool, error) {
	switch strings.ToUpper(string(b)) {
	case "1", "TRUE", "YES":
		return true, nil
	case "0", "FALSE", "NO":
		return false, nil
	default:
		return false, models.ErrInvalidInput
	}
}

// oneOf matches an argument's upper-cased text against a fixed set of
// tokens (e.g. SET's EX/PX/EXAT/PXAT/NX/XX/GET/KEEPTTL options), returning
// the matched token or "".
func oneOf(b []byte, options ...string) string {
	s := strings.ToUpper(string(b))
	for _, opt := range options {
		if s == opt {
			return opt
		}
	}
	return ""
}

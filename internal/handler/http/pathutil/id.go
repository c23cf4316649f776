package pathutil

import (
	"errors"
	"strconv"
)

// ErrInvalidIssueNumber is returned when the issue number in the URL path is invalid.
var ErrInvalidIssueNumber = errors.New("invalid issue number")

// ParseIssueNumber parses an issue number from a URL path segment.
// Issue numbers are positive integers assigned by the hosting provider.
//
// Returns ErrInvalidIssueNumber if the segment is not a number or is <= 0.
//
// Example:
//
//	n, err := ParseIssueNumber("123")
//	// Returns: 123, nil
func ParseIssueNumber(segment string) (int64, error) {
	n, err := strconv.ParseInt(segment, 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidIssueNumber
	}
	return n, nil
}

package utils

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrSelection is wrapped by every error returned from ParseSelection.
var ErrSelection = errors.New("invalid selection")

// ParseSelection expands a human-typed selection such as "1-5, 9, 00012"
// into ticket numbers.  Items are separated by commas or whitespace; a
// range "a-b" is inclusive and must not be reversed.  A selection that
// expands to more than limit numbers in total, repeats included, is
// rejected before anything is expanded.
func ParseSelection(s string, limit int) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	var out []int
	for _, f := range fields {
		lo, hi, isRange := strings.Cut(f, "-")
		if !isRange {
			n, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a number", ErrSelection, f)
			}
			if limit > 0 && len(out)+1 > limit {
				return nil, fmt.Errorf("%w: selection exceeds %d tickets", ErrSelection, limit)
			}
			out = append(out, n)
			continue
		}
		a, errA := strconv.Atoi(lo)
		b, errB := strconv.Atoi(hi)
		if errA != nil || errB != nil {
			return nil, fmt.Errorf("%w: %q is not a range", ErrSelection, f)
		}
		if a > b {
			return nil, fmt.Errorf("%w: range %q is reversed", ErrSelection, f)
		}
		if limit > 0 && (b-a+1 > limit || len(out)+(b-a+1) > limit) {
			return nil, fmt.Errorf("%w: selection exceeds %d tickets", ErrSelection, limit)
		}
		for n := a; n <= b; n++ {
			out = append(out, n)
		}
	}
	return out, nil
}

// Normalize returns the distinct values of nums in ascending order.
func Normalize(nums ...[]int) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, list := range nums {
		for _, n := range list {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

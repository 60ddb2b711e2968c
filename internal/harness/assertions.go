package harness

import (
	"fmt"
	"reflect"
	"sort"
)

// checkExpect compares a traced step with its expectation. A nil expectation
// requires success.
func checkExpect(expect *Expect, event TraceEvent) error {
	wantOutcome := OutcomeOK
	if expect != nil && expect.Error != "" {
		wantOutcome = expect.Error
	}
	if event.Outcome != wantOutcome {
		if event.Message != "" {
			return fmt.Errorf("expected %s, got %s (%s)", wantOutcome, event.Outcome, event.Message)
		}
		return fmt.Errorf("expected %s, got %s", wantOutcome, event.Outcome)
	}

	if expect == nil || expect.Result == nil {
		return nil
	}
	want, err := normalize(expect.Result)
	if err != nil {
		return err
	}
	return matchSubset("result", want, event.Result)
}

// matchSubset reports the first path where actual does not contain expected.
// Objects match when every expected key matches; everything else must be
// equal.
func matchSubset(path string, expected, actual any) error {
	expMap, ok := expected.(map[string]any)
	if !ok {
		if !reflect.DeepEqual(expected, actual) {
			return fmt.Errorf("%s: expected %v, got %v", path, expected, actual)
		}
		return nil
	}

	actMap, ok := actual.(map[string]any)
	if !ok {
		return fmt.Errorf("%s: expected an object, got %v", path, actual)
	}

	keys := make([]string, 0, len(expMap))
	for k := range expMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		got, ok := actMap[k]
		if !ok {
			return fmt.Errorf("%s.%s: missing", path, k)
		}
		if err := matchSubset(path+"."+k, expMap[k], got); err != nil {
			return err
		}
	}
	return nil
}

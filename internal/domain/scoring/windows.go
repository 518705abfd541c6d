// Package scoring computes windowed usage sums, growth, normalized values and
// candidate composite scores. Everything here is a pure function of its inputs;
// iteration, batching and persistence live with the caller.
package scoring

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window key naming.
const (
	windowKeyPrefix = "score_"
	allSuffix       = "all"

	// KeyAll is the unrestricted window.
	KeyAll = windowKeyPrefix + allSuffix
)

// DefaultYears are the cutoff years used when none are configured.
var DefaultYears = []int{2020, 2015, 2010, 2005, 2000} //nolint:gochecknoglobals // read-only defaults

// Window is one cumulative time range. Dated windows start on January 1 of
// Year (UTC) and are open-ended.
type Window struct {
	Key    string
	Year   int
	All    bool
	Cutoff time.Time
}

// Contains reports whether a usage day falls inside the window.
func (w Window) Contains(day time.Time) bool {
	if w.All {
		return true
	}
	return !day.Before(w.Cutoff)
}

// Windows is the fixed, ordered window set of a deployment.
type Windows struct {
	list  []Window
	byKey map[string]Window
}

// NewWindows builds the window set from cutoff years, in the given order,
// followed by the unrestricted window. Duplicates are dropped.
func NewWindows(years []int) *Windows {
	ws := &Windows{byKey: make(map[string]Window, len(years)+1)}
	for _, y := range years {
		w := Window{
			Key:    windowKeyPrefix + strconv.Itoa(y),
			Year:   y,
			Cutoff: time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC),
		}
		if _, dup := ws.byKey[w.Key]; dup {
			continue
		}
		ws.list = append(ws.list, w)
		ws.byKey[w.Key] = w
	}
	all := Window{Key: KeyAll, All: true}
	ws.list = append(ws.list, all)
	ws.byKey[all.Key] = all
	return ws
}

// List returns the windows in configured order, the unrestricted one last.
func (ws *Windows) List() []Window {
	out := make([]Window, len(ws.list))
	copy(out, ws.list)
	return out
}

// Keys returns the window keys in configured order.
func (ws *Windows) Keys() []string {
	keys := make([]string, len(ws.list))
	for i, w := range ws.list {
		keys[i] = w.Key
	}
	return keys
}

// Lookup resolves "score_2020", "2020", "score_all" or "all" to a window.
func (ws *Windows) Lookup(key string) (Window, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		k = KeyAll
	}
	if !strings.HasPrefix(k, windowKeyPrefix) {
		k = windowKeyPrefix + k
	}
	w, ok := ws.byKey[k]
	if !ok {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWindow, key)
	}
	return w, nil
}

package sync

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/goalritual/goalritual/internal/store"
)

// MergeSnapshots combines a local and a remote snapshot.
//
// For datasets flagged MergeByID the result is the remote list followed by
// every local item whose id does not occur remotely; remote items are never
// replaced by local duplicates. Every other dataset takes the remote value
// when present, else the local one.
//
// A nil remote snapshot yields the local snapshot.
func MergeSnapshots(local, remote store.Snapshot) store.Snapshot {
	out := make(store.Snapshot)
	for _, d := range store.Datasets {
		l, lok := present(local, d)
		r, rok := present(remote, d)

		var v string
		switch {
		case d.MergeByID && lok && rok:
			v = mergeListByID(r, l)
		case rok:
			v = r
		case lok:
			v = l
		default:
			continue
		}
		if !d.IsEmpty(v) {
			out[d.Key] = v
		}
	}
	return out
}

func present(s store.Snapshot, d store.Dataset) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s[d.Key]
	if !ok || d.IsEmpty(v) {
		return "", false
	}
	return v, true
}

// mergeListByID unions two JSON arrays by item id, remote first. Item text
// is copied verbatim. An unparsable side is treated as absent.
func mergeListByID(remote, local string) string {
	r := gjson.Parse(remote)
	l := gjson.Parse(local)
	if !gjson.Valid(remote) || !r.IsArray() {
		return local
	}
	if !gjson.Valid(local) || !l.IsArray() {
		return remote
	}

	seen := make(map[string]bool)
	seenRaw := make(map[string]bool)
	items := make([]string, 0)

	add := func(item gjson.Result) {
		if id := item.Get("id"); id.Exists() && id.String() != "" {
			if seen[id.String()] {
				return
			}
			seen[id.String()] = true
		} else {
			// items without an id can only be matched by content
			if seenRaw[item.Raw] {
				return
			}
			seenRaw[item.Raw] = true
		}
		items = append(items, item.Raw)
	}

	r.ForEach(func(_, item gjson.Result) bool {
		add(item)
		return true
	})
	l.ForEach(func(_, item gjson.Result) bool {
		add(item)
		return true
	})

	return "[" + strings.Join(items, ",") + "]"
}

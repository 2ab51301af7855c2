package store

import "strings"

// Kind describes the stored shape of a dataset value.
type Kind int

const (
	// KindList is a JSON array.
	KindList Kind = iota
	// KindObject is a JSON object.
	KindObject
	// KindText is a bare string, stored without JSON quoting.
	KindText
)

// Dataset keys. These names are a contract shared with exported files and
// other tooling; do not rename them.
const (
	KeyGoals                = "goalritual-goals"
	KeyGroupOrder           = "goalritual-group-order"
	KeyDailyTodos           = "goalritual-daily-todos"
	KeyDailyTodosReset      = "goalritual-daily-todos-reset"
	KeyRecurringTasks       = "goalritual-recurring-tasks"
	KeyPinned               = "goalritual-pinned"
	KeyLifePurpose          = "goalritual-life-purpose"
	KeyAISuggestions        = "goalritual-ai-suggestions"
	KeyDismissedSuggestions = "goalritual-ai-dismissed"
	KeyPinnedInsights       = "goalritual-pinned-insights"
	KeyJournal              = "goalritual-journal"
)

// Dataset describes one named data set and how it maps onto the remote
// snapshot row and the export document.
type Dataset struct {
	// Key is the local storage key.
	Key string
	// Kind is the stored value shape.
	Kind Kind
	// Column is the remote snapshot column.
	Column string
	// ExportField is the export document field.
	ExportField string
	// MergeByID marks list datasets whose items carry an "id" and are
	// unioned by id during a merge.
	MergeByID bool
}

// Datasets lists every dataset in snapshot order.
var Datasets = []Dataset{
	{Key: KeyGoals, Kind: KindList, Column: "goals", ExportField: "goals", MergeByID: true},
	{Key: KeyGroupOrder, Kind: KindList, Column: "group_order", ExportField: "groupOrder"},
	{Key: KeyDailyTodos, Kind: KindList, Column: "daily_todos", ExportField: "dailyTodos"},
	{Key: KeyDailyTodosReset, Kind: KindText, Column: "daily_todos_reset", ExportField: "dailyTodosLastReset"},
	{Key: KeyRecurringTasks, Kind: KindList, Column: "recurring_tasks", ExportField: "recurringTasks"},
	{Key: KeyPinned, Kind: KindList, Column: "pinned_items", ExportField: "pinnedItems"},
	{Key: KeyLifePurpose, Kind: KindText, Column: "life_purpose", ExportField: "lifePurpose"},
	{Key: KeyAISuggestions, Kind: KindObject, Column: "ai_suggestions", ExportField: "aiSuggestions"},
	{Key: KeyDismissedSuggestions, Kind: KindList, Column: "dismissed_suggestions", ExportField: "dismissedSuggestions"},
	{Key: KeyPinnedInsights, Kind: KindList, Column: "pinned_insights", ExportField: "pinnedInsights"},
	{Key: KeyJournal, Kind: KindList, Column: "journal_entries", ExportField: "journalEntries", MergeByID: true},
}

// Lookup returns the dataset registered under key.
func Lookup(key string) (Dataset, bool) {
	for _, d := range Datasets {
		if d.Key == key {
			return d, true
		}
	}
	return Dataset{}, false
}

// IsEmpty reports whether value counts as absent for d. Text datasets are
// empty only when blank; their content is never read as JSON.
func (d Dataset) IsEmpty(value string) bool {
	if d.Kind == KindText {
		return strings.TrimSpace(value) == ""
	}
	return IsEmptyValue(value)
}

// IsEmptyFor is Dataset.IsEmpty for the dataset registered under key. Keys
// outside the registry use IsEmptyValue.
func IsEmptyFor(key, value string) bool {
	if d, ok := Lookup(key); ok {
		return d.IsEmpty(value)
	}
	return IsEmptyValue(value)
}

// Snapshot holds the stored text of every present dataset, keyed by dataset
// key. A missing entry means the dataset is absent (empty default).
type Snapshot map[string]string

// Clone returns a copy of s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

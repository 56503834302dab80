// Package command defines the closed set of robot commands, the trigger
// phrase table, and the fuzzy matcher that maps normalized transcripts onto
// it.
package command

import (
	"errors"
	"fmt"
	"strings"
)

// ID identifies a recognized intent. [Unknown] is the result of a failed
// match and never names an action.
type ID int

const (
	Unknown ID = iota
	Droite45
	Gauche45
	Stop
	Avance
	Recule
	Position
	Scanne
	Autopilot
)

var idNames = [...]string{
	Unknown:   "CMD_UNKNOWN",
	Droite45:  "CMD_DROITE_45",
	Gauche45:  "CMD_GAUCHE_45",
	Stop:      "CMD_STOP",
	Avance:    "CMD_AVANCE",
	Recule:    "CMD_RECULE",
	Position:  "CMD_POSITION",
	Scanne:    "CMD_SCANNE",
	Autopilot: "CMD_AUTOPILOT",
}

// String returns the canonical name, e.g. "CMD_AVANCE".
func (id ID) String() string {
	if id < 0 || int(id) >= len(idNames) {
		return fmt.Sprintf("CMD_%d", int(id))
	}
	return idNames[id]
}

// IsKnown reports whether id is a valid, non-Unknown command.
func (id ID) IsKnown() bool {
	return id > Unknown && int(id) < len(idNames)
}

// ParseID resolves a canonical name to its ID. The "CMD_" prefix is optional
// and matching is case-insensitive.
func ParseID(name string) (ID, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(upper, "CMD_") {
		upper = "CMD_" + upper
	}
	for i, n := range idNames {
		if n == upper {
			return ID(i), nil
		}
	}
	return Unknown, fmt.Errorf("command: unknown command %q", name)
}

// All returns every known command in declaration order, excluding [Unknown].
func All() []ID {
	ids := make([]ID, 0, len(idNames)-1)
	for i := 1; i < len(idNames); i++ {
		ids = append(ids, ID(i))
	}
	return ids
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	v, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// Entry pairs a trigger phrase with the command it triggers.
type Entry struct {
	Phrase string
	ID     ID
}

// Table is an ordered list of entries. Order matters only for tie-breaking:
// between two entries at the same distance, the earlier one wins.
type Table []Entry

// DefaultTable returns the built-in French command table.
func DefaultTable() Table {
	return Table{
		{"droite", Droite45},
		{"tourne droite", Droite45},
		{"gauche", Gauche45},
		{"tourne gauche", Gauche45},
		{"stop", Stop},
		{"arrete", Stop},
		{"avancer", Avance},
		{"avance", Avance},
		{"reculer", Recule},
		{"recule", Recule},
		{"position", Position},
		{"ou es tu", Position},
		{"scanne", Scanne},
		{"scan", Scanne},
		{"autopilot", Autopilot},
		{"pilote automatique", Autopilot},
	}
}

// Validate checks that every entry has a non-empty phrase and a known ID.
func (t Table) Validate() error {
	if len(t) == 0 {
		return errors.New("command: table is empty")
	}
	var errs []error
	for i, e := range t {
		if strings.TrimSpace(e.Phrase) == "" {
			errs = append(errs, fmt.Errorf("command: entry %d: empty phrase", i))
		}
		if !e.ID.IsKnown() {
			errs = append(errs, fmt.Errorf("command: entry %d (%q): invalid command %s", i, e.Phrase, e.ID))
		}
	}
	return errors.Join(errs...)
}

// Normalize returns a copy of t with every phrase passed through fn, so that
// phrases live in the same space as normalized transcripts. Entries whose
// phrase normalizes to the empty string are dropped and returned separately.
func (t Table) Normalize(fn func(string) string) (Table, []Entry) {
	out := make(Table, 0, len(t))
	var dropped []Entry
	for _, e := range t {
		p := fn(e.Phrase)
		if p == "" {
			dropped = append(dropped, e)
			continue
		}
		out = append(out, Entry{Phrase: p, ID: e.ID})
	}
	return out, dropped
}

package command_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/mira/internal/command"
)

func TestIDString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		id   command.ID
		want string
	}{
		{command.Unknown, "CMD_UNKNOWN"},
		{command.Droite45, "CMD_DROITE_45"},
		{command.Avance, "CMD_AVANCE"},
		{command.Autopilot, "CMD_AUTOPILOT"},
		{command.ID(99), "CMD_99"},
	}
	for _, tc := range tests {
		if got := tc.id.String(); got != tc.want {
			t.Errorf("ID(%d).String() = %q, want %q", int(tc.id), got, tc.want)
		}
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()
	for _, id := range command.All() {
		got, err := command.ParseID(id.String())
		if err != nil {
			t.Fatalf("ParseID(%q): %v", id.String(), err)
		}
		if got != id {
			t.Fatalf("ParseID(%q) = %v, want %v", id.String(), got, id)
		}
	}

	if got, err := command.ParseID("avance"); err != nil || got != command.Avance {
		t.Fatalf("ParseID(%q) = %v, %v; want CMD_AVANCE", "avance", got, err)
	}
	if _, err := command.ParseID("CMD_DANCE"); err == nil {
		t.Fatal("ParseID(CMD_DANCE): expected error")
	}
}

func TestUnmarshalText(t *testing.T) {
	t.Parallel()
	var id command.ID
	if err := id.UnmarshalText([]byte("cmd_stop")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if id != command.Stop {
		t.Fatalf("UnmarshalText = %v, want CMD_STOP", id)
	}
	if err := id.UnmarshalText([]byte("nope")); err == nil {
		t.Fatal("UnmarshalText(nope): expected error")
	}
}

func TestAll_ExcludesUnknown(t *testing.T) {
	t.Parallel()
	ids := command.All()
	if len(ids) != 8 {
		t.Fatalf("len(All()) = %d, want 8", len(ids))
	}
	for _, id := range ids {
		if !id.IsKnown() {
			t.Fatalf("All() contains %v", id)
		}
	}
}

func TestTableValidate(t *testing.T) {
	t.Parallel()
	if err := command.DefaultTable().Validate(); err != nil {
		t.Fatalf("DefaultTable().Validate(): %v", err)
	}

	tests := []struct {
		name    string
		table   command.Table
		wantErr string
	}{
		{"empty table", command.Table{}, "table is empty"},
		{"empty phrase", command.Table{{Phrase: " ", ID: command.Stop}}, "empty phrase"},
		{"unknown id", command.Table{{Phrase: "stop", ID: command.Unknown}}, "invalid command"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.table.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestTableNormalize(t *testing.T) {
	t.Parallel()
	table := command.Table{
		{"Où es tu", command.Position},
		{"le", command.Stop},
		{"STOP", command.Stop},
	}
	drop := map[string]bool{"le": true, "tu": true}
	fn := func(s string) string {
		var kept []string
		for _, w := range strings.Fields(strings.ToLower(strings.ReplaceAll(s, "Où", "ou"))) {
			if !drop[w] {
				kept = append(kept, w)
			}
		}
		return strings.Join(kept, " ")
	}

	got, dropped := table.Normalize(fn)
	if len(got) != 2 || got[0].Phrase != "ou es" || got[1].Phrase != "stop" {
		t.Fatalf("Normalize() = %+v, want [ou es, stop]", got)
	}
	if len(dropped) != 1 || dropped[0].Phrase != "le" {
		t.Fatalf("dropped = %+v, want [le]", dropped)
	}
	if table[0].Phrase != "Où es tu" {
		t.Fatal("Normalize modified the receiver")
	}
}

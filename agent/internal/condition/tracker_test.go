package condition

import (
	"testing"

	"github.com/obsidianstack/valuemetric/pkg/types"
)

func mustExpr(t *testing.T, s string) Expr {
	t.Helper()
	e, err := ParseExpr(s)
	if err != nil {
		t.Fatalf("ParseExpr(%q): %v", s, err)
	}
	return e
}

func TestParseExpr(t *testing.T) {
	tests := []struct {
		expr  string
		value float64
		want  bool
	}{
		{"value > 0", 1, true},
		{"value > 0", 0, false},
		{"value >= 1", 1, true},
		{"value < 5", 7, false},
		{"value <= 5", 5, true},
		{"value == 3", 3, true},
		{"value != 3", 3, false},
	}
	for _, tc := range tests {
		e := mustExpr(t, tc.expr)
		if got := e.Match(tc.value); got != tc.want {
			t.Errorf("%s with %v = %v, want %v", tc.expr, tc.value, got, tc.want)
		}
	}

	for _, bad := range []string{"value >", "drop_pct > 1", "value ~ 1", "value > x"} {
		if _, err := ParseExpr(bad); err == nil {
			t.Errorf("ParseExpr(%q) should fail", bad)
		}
	}
}

func TestTracker_Unsliced(t *testing.T) {
	tr := NewTracker()
	tr.Define(Definition{ID: "screen_on", Expr: mustExpr(t, "value > 0")})

	if tr.Evaluate("screen_on", types.KeyOf("app", "A")) {
		t.Fatal("new condition should start inactive")
	}

	ch := tr.Update("screen_on", []types.Sample{{Value: 1}})
	if !ch.Overall || !ch.OverallChanged {
		t.Errorf("Update on: got %+v", ch)
	}
	if !tr.Evaluate("screen_on", types.KeyOf("app", "A")) {
		t.Error("unsliced condition should hold for every key")
	}

	ch = tr.Update("screen_on", []types.Sample{{Value: 1}})
	if ch.OverallChanged {
		t.Error("repeated value must not report a change")
	}

	ch = tr.Update("screen_on", nil)
	if ch.Overall || !ch.OverallChanged {
		t.Errorf("empty pull should turn the condition off, got %+v", ch)
	}
}

func TestTracker_Sliced(t *testing.T) {
	tr := NewTracker()
	tr.Define(Definition{ID: "fg", Expr: mustExpr(t, "value > 0"), Dimensions: []string{"app"}})

	tr.Update("fg", []types.Sample{
		{Key: types.KeyOf("app", "A"), Value: 1},
		{Key: types.KeyOf("app", "B"), Value: 0},
	})

	if !tr.Overall("fg") {
		t.Fatal("overall should be active when any slice is")
	}
	if !tr.Evaluate("fg", types.KeyOf("app", "A", "uid", "7")) {
		t.Error("slice app=A should be active (extra labels are projected away)")
	}
	if tr.Evaluate("fg", types.KeyOf("app", "B")) {
		t.Error("slice app=B should be inactive")
	}
	if tr.Evaluate("fg", types.KeyOf("app", "C")) {
		t.Error("unknown slice should be inactive")
	}

	ch := tr.Update("fg", []types.Sample{
		{Key: types.KeyOf("app", "A"), Value: 0},
		{Key: types.KeyOf("app", "B"), Value: 1},
	})
	if ch.OverallChanged || !ch.SlicesChanged {
		t.Errorf("slice flip with stable overall: got %+v", ch)
	}
}

func TestTracker_SetAndUnknown(t *testing.T) {
	tr := NewTracker()
	if tr.Evaluate("nope", types.DimensionKey{}) {
		t.Error("unknown condition must evaluate false")
	}
	if ch := tr.Update("nope", []types.Sample{{Value: 1}}); ch.OverallChanged {
		t.Error("update of unknown condition must be a no-op")
	}
	if ch := tr.Set("manual", true); !ch.OverallChanged || !tr.Overall("manual") {
		t.Errorf("Set: got %+v", ch)
	}
}

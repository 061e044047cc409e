package progress

import "testing"

func TestEventInitReportsLength(t *testing.T) {
	e := InitEvent[uint64](100)
	if length, ok := e.Length(); !ok || length != 100 {
		t.Errorf("Length() = %d, %v; want 100, true", length, ok)
	}
	if _, ok := e.Position(); ok {
		t.Error("Init event should not report a position")
	}
}

func TestEventProgressReportsPositionAndOptionalLength(t *testing.T) {
	withMax := ProgressEvent[uint64](40, 100, true)
	if pos, ok := withMax.Position(); !ok || pos != 40 {
		t.Errorf("Position() = %d, %v; want 40, true", pos, ok)
	}
	if length, ok := withMax.Length(); !ok || length != 100 {
		t.Errorf("Length() = %d, %v; want 100, true", length, ok)
	}

	noMax := ProgressEvent[uint64](40, 0, false)
	if _, ok := noMax.Length(); ok {
		t.Error("Progress event without a max should not report a length")
	}
}

func TestEventMessageReportsNameOnly(t *testing.T) {
	e := MessageEvent[uint64]("fetching wget")
	name, ok := e.Message()
	if !ok || name != "fetching wget" {
		t.Errorf("Message() = %q, %v; want %q, true", name, ok, "fetching wget")
	}
	if _, ok := e.Position(); ok {
		t.Error("Message event should not report a position")
	}
}

func TestEventFinishReportsNothing(t *testing.T) {
	e := FinishEvent[uint64]()
	if _, ok := e.Message(); ok {
		t.Error("Finish event should not report a message")
	}
	if _, ok := e.Position(); ok {
		t.Error("Finish event should not report a position")
	}
	if _, ok := e.Length(); ok {
		t.Error("Finish event should not report a length")
	}
}

func TestDetailEventOverallDelegatesToInnerEvent(t *testing.T) {
	d := OverallEvent[uint64, uint64](ProgressEvent[uint64](5, 10, true))
	if pos, ok := d.Position(); !ok || pos != 5 {
		t.Errorf("Position() = %d, %v; want 5, true", pos, ok)
	}
	if _, isItem := d.Tag(); isItem {
		t.Error("Overall event should not carry an item tag")
	}
}

func TestDetailEventItemCarriesTagAndGraduates(t *testing.T) {
	d := ItemEvent[uint64, uint64](3, FinishEvent[uint64]())
	index, ok := d.Tag()
	if !ok || index != 3 {
		t.Errorf("Tag() = %d, %v; want 3, true", index, ok)
	}
	if !d.Graduate() {
		t.Error("expected a Finish item event to graduate")
	}
}

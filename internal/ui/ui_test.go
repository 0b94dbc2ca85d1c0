package ui

import "testing"

type recordingSink struct {
	renders []Page
}

func (r *recordingSink) Render(page Page, fields Fields) {
	r.renders = append(r.renders, page)
}

func TestInitialPageIsQrScanAndRendersOnce(t *testing.T) {
	sink := &recordingSink{}
	d := NewDriver(sink)
	d.Tick(0)
	if len(sink.renders) != 1 || sink.renders[0] != QrScan {
		t.Fatalf("renders = %v, want [QrScan]", sink.renders)
	}
	d.Tick(1)
	if len(sink.renders) != 1 {
		t.Errorf("expected no redraw without a change, got %v", sink.renders)
	}
}

func TestRedrawIsEdgeTriggered(t *testing.T) {
	sink := &recordingSink{}
	d := NewDriver(sink)
	d.Tick(0)
	d.SetFields(Fields{SpeedKMH: 5, BatteryPercent: 80})
	d.Tick(10)
	if len(sink.renders) != 2 {
		t.Fatalf("renders = %v, want 2 entries", sink.renders)
	}
}

func TestAlertClassPageAutoRevertsAfterDelay(t *testing.T) {
	sink := &recordingSink{}
	d := NewDriver(sink)
	d.Tick(0)
	d.SetPage(GenericAlert, 1000)
	d.Tick(1000)
	if d.Page() != GenericAlert {
		t.Fatalf("Page() = %v, want GenericAlert", d.Page())
	}

	d.Tick(1000 + AutoRevertDelay.Milliseconds() - 1)
	if d.Page() != GenericAlert {
		t.Errorf("reverted too early, Page() = %v", d.Page())
	}

	d.Tick(1000 + AutoRevertDelay.Milliseconds())
	if d.Page() != Welcome {
		t.Errorf("Page() = %v, want Welcome after auto-revert", d.Page())
	}
}

func TestNonAlertPageNeverAutoReverts(t *testing.T) {
	sink := &recordingSink{}
	d := NewDriver(sink)
	d.Tick(0)
	d.SetPage(PleaseWait, 0)
	d.Tick(0)
	d.Tick(1_000_000)
	if d.Page() != PleaseWait {
		t.Errorf("Page() = %v, want PleaseWait (non-alert pages never auto-revert)", d.Page())
	}
}

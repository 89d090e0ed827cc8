package timeline

import (
	"bytes"
	"strings"
	"testing"
)

func TestRecordComputesRelativeTimestampPerInstance(t *testing.T) {
	var buf bytes.Buffer
	clock := []float64{10.0, 10.5, 12.0}
	i := 0
	rec := NewRecorderWithClock(&buf, func() float64 {
		v := clock[i]
		i++
		return v
	})

	ev1 := rec.Record("local", "c1", true, 0, EventLocal, "role_change,master")
	if ev1.RelativeTimestamp != 0 {
		t.Fatalf("expected first event's rts to be 0, got %v", ev1.RelativeTimestamp)
	}
	ev2 := rec.Record("local", "c1", true, 0, EventLocal, "role_change,slave")
	if ev2.RelativeTimestamp != 0.5 {
		t.Fatalf("expected rts 0.5, got %v", ev2.RelativeTimestamp)
	}

	// A different instance key starts its own rts sequence at 0.
	ev3 := rec.Record("local", "c1", true, 1, EventLocal, "role_change,master")
	if ev3.RelativeTimestamp != 0 {
		t.Fatalf("expected a different instance's first event to have rts 0, got %v", ev3.RelativeTimestamp)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 emitted lines, got %d: %v", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "local,c1.0,10.000000,0.000000,event_local,") {
		t.Fatalf("unexpected first line: %q", lines[0])
	}
}

func TestParseEmulEventRoundTrips(t *testing.T) {
	line := FormatEmulEvent(123.456, EmulRole, "master")
	ev, err := ParseEmulEvent(line)
	if err != nil {
		t.Fatalf("ParseEmulEvent: %v", err)
	}
	if ev.Kind != EmulRole || len(ev.Args) != 1 || ev.Args[0] != "master" {
		t.Fatalf("unexpected parse result: %+v", ev)
	}
	if ev.Timestamp != 123.456 {
		t.Fatalf("unexpected timestamp: %v", ev.Timestamp)
	}
}

func TestParseEmulEventTolerantOfLogPrefix(t *testing.T) {
	line := "time=\"2026-01-01T00:00:00Z\" level=critical msg=" + FormatEmulEvent(1.0, EmulInstFail, "ctrl-a", "0")
	ev, err := ParseEmulEvent(line)
	if err != nil {
		t.Fatalf("ParseEmulEvent: %v", err)
	}
	if ev.Kind != EmulInstFail || len(ev.Args) != 2 || ev.Args[0] != "ctrl-a" || ev.Args[1] != "0" {
		t.Fatalf("unexpected parse result: %+v", ev)
	}
}

func TestParseEmulEventRejectsMissingMarker(t *testing.T) {
	if _, err := ParseEmulEvent("just a normal log line"); err == nil {
		t.Fatalf("expected an error for a line without the XXXEMUL marker")
	}
}

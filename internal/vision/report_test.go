package vision

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuildGestureGroups(t *testing.T) {
	events := []ViolationEvent{
		{Category: GazeRight, StartTime: 65.5, Duration: 0.8, Intensity: 9.4},
		{Category: HeadLeft, StartTime: 12.3, Duration: 1.2, Intensity: 34.6},
		{Category: FaceMissing, StartTime: 200.0, Duration: 3.5},
		{Category: HeadDown, StartTime: 4.0, Duration: 0.5, Intensity: 22.0},
	}

	got := BuildGestureGroups(events)
	want := []GestureGroup{
		{
			Name: GroupHeadMovement,
			Occurrences: []Occurrence{
				{Timestamp: "0:04", Duration: 0.5, Direction: "down", Intensity: "22 degrees"},
				{Timestamp: "0:12", Duration: 1.2, Direction: "left", Intensity: "35 degrees"},
			},
		},
		{
			Name: GroupEyeMovement,
			Occurrences: []Occurrence{
				{Timestamp: "1:05", Duration: 0.8, Direction: "right", Intensity: "9 degrees"},
			},
		},
		{
			Name: GroupFaceMissing,
			Occurrences: []Occurrence{
				{Timestamp: "3:20", Duration: 3.5},
			},
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildGestureGroups mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildGestureGroupsOmitsEmptyGroups(t *testing.T) {
	events := []ViolationEvent{
		{Category: MultipleFaces, StartTime: 10.0, Duration: 2.0},
	}

	got := BuildGestureGroups(events)
	if len(got) != 1 {
		t.Fatalf("expected 1 group, got %d", len(got))
	}
	if got[0].Name != GroupMultipleFaces {
		t.Errorf("group name = %s, want multiple_faces", got[0].Name)
	}
	// Presence occurrences carry no direction or intensity text.
	if occ := got[0].Occurrences[0]; occ.Direction != "" || occ.Intensity != "" {
		t.Errorf("presence occurrence = %+v, want empty direction and intensity", occ)
	}
}

func TestBuildGestureGroupsEmptyInput(t *testing.T) {
	if got := BuildGestureGroups(nil); len(got) != 0 {
		t.Errorf("expected no groups for no events, got %d", len(got))
	}
}

func TestBuildGestureGroupsSortsWithinGroup(t *testing.T) {
	events := []ViolationEvent{
		{Category: GazeUp, StartTime: 30.0, Duration: 0.5, Intensity: 7.0},
		{Category: GazeDown, StartTime: 5.0, Duration: 0.5, Intensity: 8.0},
		{Category: GazeLeft, StartTime: 15.0, Duration: 0.5, Intensity: 9.0},
	}

	got := BuildGestureGroups(events)
	if len(got) != 1 {
		t.Fatalf("expected 1 group, got %d", len(got))
	}

	wantDirections := []string{"down", "left", "up"}
	for i, occ := range got[0].Occurrences {
		if occ.Direction != wantDirections[i] {
			t.Errorf("occurrence %d direction = %s, want %s (chronological order)", i, occ.Direction, wantDirections[i])
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00"},
		{0.078, "0:00"},
		{9.9, "0:09"},
		{59.999, "0:59"},
		{60, "1:00"},
		{65.5, "1:05"},
		{105.999, "1:45"},
		{600, "10:00"},
		{3725.2, "62:05"},
	}

	for _, tc := range cases {
		if got := FormatTimestamp(tc.seconds); got != tc.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestDirectionLabel(t *testing.T) {
	cases := map[ViolationCategory]string{
		HeadLeft:  "left",
		HeadRight: "right",
		HeadUp:    "up",
		HeadDown:  "down",
		GazeLeft:  "left",
		GazeUp:    "up",
	}
	for cat, want := range cases {
		if got := directionLabel(cat); got != want {
			t.Errorf("directionLabel(%s) = %q, want %q", cat, got, want)
		}
	}
}

func TestIntensityRoundsToWholeDegrees(t *testing.T) {
	events := []ViolationEvent{
		{Category: HeadRight, StartTime: 1.0, Duration: 0.5, Intensity: 30.5},
	}
	got := BuildGestureGroups(events)
	if got[0].Occurrences[0].Intensity != "31 degrees" {
		t.Errorf("intensity = %q, want %q", got[0].Occurrences[0].Intensity, "31 degrees")
	}
}

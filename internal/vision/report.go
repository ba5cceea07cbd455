package vision

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Gesture group names in report output order.
const (
	GroupHeadMovement  = "head_movement"
	GroupEyeMovement   = "eye_movement"
	GroupFaceMissing   = "face_missing"
	GroupMultipleFaces = "multiple_faces"
)

// Occurrence is one reportable violation span in external report shape.
// Direction and Intensity are empty strings for presence groups.
type Occurrence struct {
	Timestamp string  `json:"timestamp"` // M:SS, truncated
	Duration  float64 `json:"duration"`  // Seconds, 1 decimal
	Direction string  `json:"direction"`
	Intensity string  `json:"intensity"` // "<degrees> degrees" for angle groups
}

// GestureGroup aggregates a category family's occurrences, ordered by
// ascending start time.
type GestureGroup struct {
	Name        string       `json:"name"`
	Occurrences []Occurrence `json:"occurrence"`
}

// groupCategories maps each gesture group to its member categories.
var groupCategories = map[string][]ViolationCategory{
	GroupHeadMovement:  {HeadLeft, HeadRight, HeadUp, HeadDown},
	GroupEyeMovement:   {GazeLeft, GazeRight, GazeUp, GazeDown},
	GroupFaceMissing:   {FaceMissing},
	GroupMultipleFaces: {MultipleFaces},
}

// groupOrder fixes the sequence of groups in the output.
var groupOrder = []string{GroupHeadMovement, GroupEyeMovement, GroupFaceMissing, GroupMultipleFaces}

// BuildGestureGroups partitions finalized events into the four fixed gesture
// groups, sorts each group by ascending start time, and renders directions,
// intensities, and timestamps into the external report shape. Groups with
// zero occurrences are omitted entirely.
func BuildGestureGroups(events []ViolationEvent) []GestureGroup {
	groups := make([]GestureGroup, 0, len(groupOrder))

	for _, name := range groupOrder {
		members := make(map[ViolationCategory]bool, 4)
		for _, cat := range groupCategories[name] {
			members[cat] = true
		}

		matched := make([]ViolationEvent, 0)
		for _, ev := range events {
			if members[ev.Category] {
				matched = append(matched, ev)
			}
		}
		if len(matched) == 0 {
			continue
		}

		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].StartTime < matched[j].StartTime
		})

		occurrences := make([]Occurrence, 0, len(matched))
		for _, ev := range matched {
			occ := Occurrence{
				Timestamp: FormatTimestamp(ev.StartTime),
				Duration:  round1(ev.Duration),
			}
			if !ev.Category.IsPresence() {
				occ.Direction = directionLabel(ev.Category)
				occ.Intensity = fmt.Sprintf("%.0f degrees", math.Round(ev.Intensity))
			}
			occurrences = append(occurrences, occ)
		}

		groups = append(groups, GestureGroup{Name: name, Occurrences: occurrences})
	}

	return groups
}

// directionLabel strips the category prefix: head_left -> "left".
func directionLabel(cat ViolationCategory) string {
	s := string(cat)
	if idx := strings.IndexByte(s, '_'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// FormatTimestamp renders seconds as M:SS with the sub-second remainder
// truncated, not rounded: 22.345 -> "0:22", 105.999 -> "1:45".
func FormatTimestamp(seconds float64) string {
	whole := int(seconds)
	return fmt.Sprintf("%d:%02d", whole/60, whole%60)
}

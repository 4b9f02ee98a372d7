package timetable

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Solution is the JSON form of a solver solution document.
type Solution struct {
	Info    SolutionInfo    `json:"info"`
	Classes []AssignedClass `json:"classes"`
}

// SolutionDocument wraps a Solution the way the API serves it.
type SolutionDocument struct {
	Solution Solution `json:"solution"`
}

// SolutionInfo is solution-level metadata.
type SolutionInfo struct {
	Version    string            `json:"version"`
	Created    string            `json:"created"`
	Runtime    string            `json:"runtime"`
	Statistics map[string]string `json:"statistics,omitempty"`
}

// AssignedClass is one class together with its assignment.
type AssignedClass struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Offering   string     `json:"offering"`
	Assignment Assignment `json:"assignment"`
}

// Assignment is the placed time, rooms, and instructors of a class.
type Assignment struct {
	Time        *AssignedTime        `json:"time,omitempty"`
	Rooms       []AssignedRoom       `json:"rooms,omitempty"`
	Instructors []AssignedInstructor `json:"instructors,omitempty"`
}

// AssignedTime is a placed meeting time in human-readable and raw form.
type AssignedTime struct {
	Days  []string `json:"days"`
	Start string   `json:"start"`
	End   string   `json:"end"`
	Raw   RawTime  `json:"raw"`
}

// RawTime is the solver's native slot representation of a time.
type RawTime struct {
	Days      string `json:"days"`
	StartSlot int    `json:"start_slot"`
	Length    int    `json:"length"`
}

// AssignedRoom is a placed room.
type AssignedRoom struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AssignedInstructor is a placed instructor.
type AssignedInstructor struct {
	ID string `json:"id"`
}

type solutionXML struct {
	XMLName xml.Name           `xml:"timetable"`
	Version string             `xml:"version,attr"`
	Created string             `xml:"created,attr"`
	Classes []solutionClassXML `xml:"classes>class"`
	Stats   []statisticXML     `xml:"statistic"`
}

type solutionClassXML struct {
	ID          string          `xml:"id,attr"`
	Name        string          `xml:"name,attr"`
	Offering    string          `xml:"offering,attr"`
	Times       []timeXML       `xml:"time"`
	Rooms       []roomXML       `xml:"room"`
	Instructors []instructorXML `xml:"instructor"`
}

type timeXML struct {
	Days     string `xml:"days,attr"`
	Start    int    `xml:"start,attr"`
	Length   int    `xml:"length,attr"`
	Solution bool   `xml:"solution,attr"`
}

type roomXML struct {
	ID       string `xml:"id,attr"`
	Name     string `xml:"name,attr"`
	Solution bool   `xml:"solution,attr"`
}

type instructorXML struct {
	ID       string `xml:"id,attr"`
	Solution bool   `xml:"solution,attr"`
}

type statisticXML struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

var (
	runtimeRe      = regexp.MustCompile(`Time:\s*([0-9.]+)\s*min`)
	solutionInfoRe = regexp.MustCompile(`(?s)<!--Solution Info:(.*?)-->`)
)

// ParseSolution converts a solver solution XML document to its JSON form.
//
// Assignments are the elements marked solution="true"; classes without any
// assignment are omitted. Runtime and solution statistics live in XML
// comments written by the solver and are extracted from the raw document.
func ParseSolution(data []byte) (*Solution, error) {
	var doc solutionXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid solution XML: %w", err)
	}

	info := SolutionInfo{
		Version: doc.Version,
		Created: doc.Created,
		Runtime: extractRuntime(data),
	}

	stats := extractCommentStats(data)
	for _, stat := range doc.Stats {
		stats[stat.Name] = strings.TrimSpace(stat.Value)
	}
	if len(stats) > 0 {
		info.Statistics = stats
	}

	var classes []AssignedClass
	for _, class := range doc.Classes {
		assigned := AssignedClass{
			ID:       class.ID,
			Name:     class.Name,
			Offering: class.Offering,
		}

		for _, t := range class.Times {
			if !t.Solution {
				continue
			}
			assigned.Assignment.Time = &AssignedTime{
				Days:  decodeDays(t.Days),
				Start: formatSlot(t.Start),
				End:   formatSlot(t.Start + t.Length),
				Raw: RawTime{
					Days:      t.Days,
					StartSlot: t.Start,
					Length:    t.Length,
				},
			}
			break
		}

		for _, room := range class.Rooms {
			if room.Solution {
				assigned.Assignment.Rooms = append(assigned.Assignment.Rooms, AssignedRoom{ID: room.ID, Name: room.Name})
			}
		}
		for _, instr := range class.Instructors {
			if instr.Solution {
				assigned.Assignment.Instructors = append(assigned.Assignment.Instructors, AssignedInstructor{ID: instr.ID})
			}
		}

		// Only classes that received an assignment appear in the output.
		if assigned.Assignment.Time != nil || len(assigned.Assignment.Rooms) > 0 || len(assigned.Assignment.Instructors) > 0 {
			classes = append(classes, assigned)
		}
	}

	return &Solution{Info: info, Classes: classes}, nil
}

// ValidateSolverXML checks that a document parses as a solver timetable
// problem or solution without converting it. Used for structural
// validation of raw XML submissions.
func ValidateSolverXML(data []byte) error {
	var probe struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("invalid XML document: %w", err)
	}
	if probe.XMLName.Local != "timetable" {
		return fmt.Errorf("unexpected root element %q (expected timetable)", probe.XMLName.Local)
	}
	return nil
}

func extractRuntime(data []byte) string {
	if m := runtimeRe.FindSubmatch(data); m != nil {
		if v, err := strconv.ParseFloat(string(m[1]), 64); err == nil && v > 0 {
			return fmt.Sprintf("%g minutes", v)
		}
	}
	return "Less than a minute"
}

// extractCommentStats parses the "Solution Info" comment block the solver
// writes into the document: one "Key: value" pair per line. Time is
// skipped; it is reported separately as runtime.
func extractCommentStats(data []byte) map[string]string {
	stats := make(map[string]string)
	m := solutionInfoRe.FindSubmatch(data)
	if m == nil {
		return stats
	}
	for _, line := range strings.Split(string(m[1]), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || key == "Time" {
			continue
		}
		stats[key] = strings.TrimSpace(value)
	}
	return stats
}

// formatSlot renders a 5-minute slot number as a 12-hour clock time.
func formatSlot(slot int) string {
	hour := slot / slotsPerHour
	minute := (slot % slotsPerHour) * 5

	period := "AM"
	if hour >= 12 {
		period = "PM"
	}
	displayHour := hour % 12
	if displayHour == 0 {
		displayHour = 12
	}
	return fmt.Sprintf("%d:%02d %s", displayHour, minute, period)
}

var dayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// decodeDays expands a binary day pattern ("1010100") into day names.
// Some solver builds emit the digit one as a non-ASCII numeral, so any
// rune that is not '0' counts as set.
func decodeDays(pattern string) []string {
	var days []string
	for i, r := range []rune(pattern) {
		if i >= len(dayNames) {
			break
		}
		if r != '0' {
			days = append(days, dayNames[i])
		}
	}
	return days
}

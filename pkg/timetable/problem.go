// Package timetable defines the course-timetabling problem and solution
// documents and converts between their wire form (JSON or YAML) and the
// solver's native XML format.
package timetable

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Problem is the submitted timetabling problem.
//
// The model is deliberately minimal: rooms, instructors, classes, optional
// students and pairwise distribution constraints. Everything the solver
// additionally requires (departments, date patterns, instructional types)
// is synthesized during XML conversion.
type Problem struct {
	Name        string       `json:"name,omitempty" yaml:"name,omitempty"`
	Rooms       []Room       `json:"rooms" yaml:"rooms"`
	Instructors []Instructor `json:"instructors,omitempty" yaml:"instructors,omitempty"`
	Classes     []Class      `json:"classes" yaml:"classes"`
	Students    []Student    `json:"students,omitempty" yaml:"students,omitempty"`

	DistributionConstraints *DistributionConstraints `json:"distribution_constraints,omitempty" yaml:"distribution_constraints,omitempty"`
}

// Room is a schedulable room.
type Room struct {
	ID       string `json:"id" yaml:"id"`
	Capacity int    `json:"capacity" yaml:"capacity"`
}

// Instructor teaches classes.
type Instructor struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Class is one section to be placed in the timetable.
type Class struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	Course     string `json:"course,omitempty" yaml:"course,omitempty"`
	Instructor string `json:"instructor,omitempty" yaml:"instructor,omitempty"`
	Students   int    `json:"students,omitempty" yaml:"students,omitempty"`
}

// Student enrolls in classes; enrollments drive conflict weights.
type Student struct {
	ID      string   `json:"id" yaml:"id"`
	Classes []string `json:"classes,omitempty" yaml:"classes,omitempty"`
}

// DistributionConstraints are pairwise constraints between classes.
type DistributionConstraints struct {
	// MutuallyExclusive groups may not meet at the same time (DIFF_TIME).
	MutuallyExclusive [][]string `json:"mutually_exclusive,omitempty" yaml:"mutually_exclusive,omitempty"`
	// BackToBack groups should meet back to back (BTB_TIME).
	BackToBack [][]string `json:"back_to_back,omitempty" yaml:"back_to_back,omitempty"`
}

// defaultCourse groups classes that declare no course.
const defaultCourse = "DEFAULT"

// Validate performs structural validation only: required fields present,
// identifiers non-empty and unique, references resolvable. Semantic
// validation (solvability) belongs to the solver.
func (p *Problem) Validate() error {
	if len(p.Rooms) == 0 {
		return fmt.Errorf("problem must declare at least one room")
	}
	if len(p.Classes) == 0 {
		return fmt.Errorf("problem must declare at least one class")
	}

	roomIDs := make(map[string]bool, len(p.Rooms))
	for i, room := range p.Rooms {
		if strings.TrimSpace(room.ID) == "" {
			return fmt.Errorf("rooms[%d] is missing an id", i)
		}
		if roomIDs[room.ID] {
			return fmt.Errorf("duplicate room id %q", room.ID)
		}
		if room.Capacity <= 0 {
			return fmt.Errorf("room %q must have a positive capacity", room.ID)
		}
		roomIDs[room.ID] = true
	}

	classIDs := make(map[string]bool, len(p.Classes))
	for i, class := range p.Classes {
		if strings.TrimSpace(class.ID) == "" {
			return fmt.Errorf("classes[%d] is missing an id", i)
		}
		if classIDs[class.ID] {
			return fmt.Errorf("duplicate class id %q", class.ID)
		}
		classIDs[class.ID] = true
	}

	instructorIDs := make(map[string]bool, len(p.Instructors))
	for i, instr := range p.Instructors {
		if strings.TrimSpace(instr.ID) == "" {
			return fmt.Errorf("instructors[%d] is missing an id", i)
		}
		if instructorIDs[instr.ID] {
			return fmt.Errorf("duplicate instructor id %q", instr.ID)
		}
		instructorIDs[instr.ID] = true
	}

	for _, student := range p.Students {
		for _, classID := range student.Classes {
			if !classIDs[classID] {
				return fmt.Errorf("student %q references unknown class %q", student.ID, classID)
			}
		}
	}

	if dc := p.DistributionConstraints; dc != nil {
		for _, group := range append(append([][]string{}, dc.MutuallyExclusive...), dc.BackToBack...) {
			for _, classID := range group {
				if !classIDs[classID] {
					return fmt.Errorf("distribution constraint references unknown class %q", classID)
				}
			}
		}
	}

	return nil
}

// ParseProblem decodes a JSON problem document and validates it
// structurally.
func ParseProblem(data []byte) (*Problem, error) {
	var p Problem
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse problem document: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadProblem reads a problem document from a file. The format is chosen
// by extension: .json for JSON, .yaml/.yml for YAML; anything else tries
// YAML first and falls back to JSON.
func LoadProblem(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("problem file not found: %s", path)
		}
		return nil, fmt.Errorf("read problem file: %w", err)
	}

	var p Problem
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse problem JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse problem YAML: %w", err)
		}
	default:
		if yamlErr := yaml.Unmarshal(data, &p); yamlErr != nil {
			if jsonErr := json.Unmarshal(data, &p); jsonErr != nil {
				return nil, fmt.Errorf("parse problem file (tried YAML and JSON): %w", yamlErr)
			}
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// courses groups the classes by course, preserving first-seen order.
func (p *Problem) courses() ([]string, map[string][]Class) {
	var order []string
	byCourse := make(map[string][]Class)
	for _, class := range p.Classes {
		course := class.Course
		if course == "" {
			course = defaultCourse
		}
		if _, seen := byCourse[course]; !seen {
			order = append(order, course)
		}
		byCourse[course] = append(byCourse[course], class)
	}
	return order, byCourse
}

package timetable

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"
)

// Solver XML geometry: the cpsolver timetable model uses 5-minute slots,
// 288 per day, with binary day patterns starting at Monday.
const (
	slotsPerDay  = 288
	slotsPerHour = 12
	nrDays       = 5
)

// element is a generic XML element with ordered attributes. The solver's
// input format is wide and attribute-heavy; building a tree keeps the
// conversion readable without dozens of marshalling structs.
type element struct {
	tag      string
	attrs    []xml.Attr
	children []*element
}

// el appends a child element; attrs are alternating name/value pairs.
func el(parent *element, tag string, attrs ...string) *element {
	child := &element{tag: tag}
	for i := 0; i+1 < len(attrs); i += 2 {
		child.attrs = append(child.attrs, xml.Attr{
			Name:  xml.Name{Local: attrs[i]},
			Value: attrs[i+1],
		})
	}
	if parent != nil {
		parent.children = append(parent.children, child)
	}
	return child
}

func (e *element) encode(enc *xml.Encoder) error {
	start := xml.StartElement{Name: xml.Name{Local: e.tag}, Attr: e.attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, child := range e.children {
		if err := child.encode(enc); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

func (e *element) marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := e.encode(enc); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// idMap assigns stable numeric ids (1-based, as strings) to external ids,
// as the solver requires numeric identifiers.
type idMap map[string]string

func newIDMap(ids []string) idMap {
	m := make(idMap, len(ids))
	for i, id := range ids {
		m[id] = strconv.Itoa(i + 1)
	}
	return m
}

func (m idMap) get(id string) string {
	if v, ok := m[id]; ok {
		return v
	}
	return "1"
}

// SolverXML converts the problem to the solver's native input document.
//
// The conversion mirrors the shape the solver requires: beyond the rooms,
// instructors, classes, and constraints actually present in the problem, a
// fixed scaffold of departments, instructional types, subjects, academic
// areas, date patterns, and time patterns is emitted, and every class gets
// an all-neutral preference grid plus MWF/TTh candidate times.
func (p *Problem) SolverXML() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	roomIDs := make([]string, len(p.Rooms))
	for i, room := range p.Rooms {
		roomIDs[i] = room.ID
	}
	roomNum := newIDMap(roomIDs)

	classIDs := make([]string, len(p.Classes))
	for i, class := range p.Classes {
		classIDs[i] = class.ID
	}
	classNum := newIDMap(classIDs)

	instructorNum, extraInstructors := p.instructorIDs()

	root := el(nil, "timetable",
		"version", "2.4",
		"campus", "CAMPUS",
		"term", "1",
		"year", "2023",
		"created", time.Now().Format("2006-01-02 15:04:05"),
		"nrDays", strconv.Itoa(nrDays),
		"slotsPerDay", strconv.Itoa(slotsPerDay),
		"type", "course",
		"studWeights", "false",
		"instrWeights", "false",
		"diffRoomWeights", "false",
		"diffTimeWeights", "false",
		"longerWeights", "false",
		"deptBalancing", "false",
		"perturbations", "false",
	)

	// The travel times element must exist and be non-empty.
	travel := el(root, "traveltimes")
	el(travel, "travel", "fromBldId", "1", "toBldId", "1", "time", "0")

	instructors := el(root, "instructors")
	for _, instr := range p.Instructors {
		name := instr.Name
		if name == "" {
			name = "Instructor " + instructorNum.get(instr.ID)
		}
		el(instructors, "instructor",
			"id", instructorNum.get(instr.ID),
			"externalId", instr.ID,
			"name", name,
		)
	}
	for _, id := range extraInstructors {
		el(instructors, "instructor",
			"id", instructorNum.get(id),
			"externalId", id,
			"name", id,
		)
	}

	rooms := el(root, "rooms")
	for _, room := range p.Rooms {
		el(rooms, "room",
			"id", roomNum.get(room.ID),
			"externalId", room.ID,
			"capacity", strconv.Itoa(room.Capacity),
			"building", "1",
			"constraint", "1",
		)
	}

	departments := el(root, "departments")
	el(departments, "department", "id", "1", "externalId", "DEPT1", "name", "Department 1", "deptCode", "DEPT1")

	itypes := el(root, "instructionalTypes")
	el(itypes, "instructionalType", "id", "1", "reference", "Lec", "name", "Lecture",
		"abbreviation", "Lec", "type", "normal", "organized", "true")
	el(itypes, "instructionalType", "id", "2", "reference", "Rec", "name", "Recitation",
		"abbreviation", "Rec", "type", "normal", "organized", "true")

	subjects := el(root, "subjects")
	el(subjects, "subject", "id", "1", "externalId", "SUBJ1", "name", "Subject 1")

	academicAreas := el(root, "academicAreas")
	el(academicAreas, "academicArea", "id", "1", "abbv", "COMP", "name", "Computer Science")

	posMajors := el(root, "posMajors")
	el(posMajors, "posMajor", "id", "1", "code", "CS", "name", "Computer Science", "academicAreaId", "1")

	studentGroups := el(root, "studentGroups")
	el(studentGroups, "studentGroup", "id", "1", "code", "CSG", "name", "CS Group", "type", "MAJOR")

	datePatterns := el(root, "datePatterns")
	el(datePatterns, "datePattern",
		"id", "1", "name", "Full Term", "pattern", "111111111111111", "type", "Standard", "visible", "true")

	p.appendOfferings(root, classNum)
	appendTimePatterns(root)
	p.appendClasses(root, classNum, roomNum, instructorNum)
	p.appendDistributions(root, classNum)
	p.appendStudents(root, classNum)

	buildings := el(root, "buildings")
	el(buildings, "building", "id", "1", "externalId", "MAIN", "name", "Main Building", "x", "0", "y", "0")

	solutions := el(root, "solutions")
	el(solutions, "solution", "id", "1", "commit", "1", "update", "1", "save", "1")

	return root.marshal()
}

// instructorIDs numbers declared instructors 1..n and instructors that are
// only referenced from classes 101..; both resolve through the same map.
func (p *Problem) instructorIDs() (idMap, []string) {
	m := make(idMap, len(p.Instructors))
	for i, instr := range p.Instructors {
		m[instr.ID] = strconv.Itoa(i + 1)
	}

	var extra []string
	seen := make(map[string]bool)
	for _, class := range p.Classes {
		if class.Instructor == "" || seen[class.Instructor] {
			continue
		}
		seen[class.Instructor] = true
		if _, declared := m[class.Instructor]; !declared {
			m[class.Instructor] = strconv.Itoa(len(extra) + 101)
			extra = append(extra, class.Instructor)
		}
	}
	return m, extra
}

func (p *Problem) appendOfferings(root *element, classNum idMap) {
	order, byCourse := p.courses()
	offerings := el(root, "offerings")
	for i, course := range order {
		offeringID := strconv.Itoa(i + 1)
		offering := el(offerings, "offering", "id", offeringID, "name", course)

		courseEl := el(offering, "course",
			"id", offeringID,
			"courseNbr", "COURSE"+offeringID,
			"subjectId", "1",
			"title", course,
			"schedBookOnly", "false",
		)
		el(courseEl, "courseCredit",
			"creditType", "standard",
			"creditUnitType", "units",
			"creditFormat", "fixedUnit",
			"fixedCredit", "3",
		)

		config := el(offering, "config", "id", offeringID, "name", "Config "+offeringID, "limit", "100")
		subpart := el(config, "subpart",
			"id", offeringID,
			"itype", "1",
			"name", "Lecture",
			"type", "lec",
			"suffix", "Lec",
			"minPerWeek", "150",
		)
		el(subpart, "itype", "id", "1", "name", "Lecture", "abbreviation", "Lec")

		for j, class := range byCourse[course] {
			sectionID := fmt.Sprintf("%s%d", offeringID, j+1)
			el(subpart, "section",
				"id", sectionID,
				"name", "Section "+sectionID,
				"limit", strconv.Itoa(classLimit(class)),
				"classId", classNum.get(class.ID),
				"scheduleNote", "auto-generated",
			)
		}
	}
}

func appendTimePatterns(root *element) {
	patterns := el(root, "timePatterns")
	el(patterns, "timePattern",
		"id", "1", "name", "1h MWF", "nrMeetings", "3", "minsPerMeeting", "50",
		"days", "1010100", "slotsPerMeeting", "10", "breakTime", "0",
		"times", "90,102,114,126,138,150,162,174,186,198,210")
	el(patterns, "timePattern",
		"id", "2", "name", "1.5h TTh", "nrMeetings", "2", "minsPerMeeting", "75",
		"days", "0101000", "slotsPerMeeting", "15", "breakTime", "0",
		"times", "90,102,114,126,138,150,162,174,186,198,210")
}

func (p *Problem) appendClasses(root *element, classNum, roomNum, instructorNum idMap) {
	order, _ := p.courses()
	offeringByCourse := make(map[string]string, len(order))
	for i, course := range order {
		offeringByCourse[course] = strconv.Itoa(i + 1)
	}

	classes := el(root, "classes")
	for _, class := range p.Classes {
		course := class.Course
		if course == "" {
			course = defaultCourse
		}
		offeringID := offeringByCourse[course]
		if offeringID == "" {
			offeringID = "1"
		}
		classID := classNum.get(class.ID)

		classEl := el(classes, "class",
			"id", classID,
			"classId", classID,
			"departmentClassId", classID,
			"subjectId", "1",
			"instructorId", "1",
			"courseId", offeringID,
			"schedulingSubpartId", offeringID,
			"studentSchedulingEnabled", "true",
			"isCommitted", "false",
			"nrRooms", "1",
			"timetable", "false",
			"roomNames", "",
			"externalId", class.ID,
			"managingDept", "1",
			"classLimit", strconv.Itoa(classLimit(class)),
			"snapshotLimit", "0",
		)

		el(classEl, "datePattern", "id", "1", "name", "Full Term", "type", "Standard", "visible", "true")

		if class.Instructor != "" {
			el(classEl, "instructor", "id", instructorNum.get(class.Instructor))
		}

		// Neutral preference over the whole week; candidate meeting times
		// below narrow the actual placements.
		timePrefs := el(classEl, "timePreferences")
		pattern := el(timePrefs, "timePattern",
			"name", "Default", "nrMeetings", "3", "minsPerMeeting", "50", "type", "Standard", "breakTime", "0")
		for day := 0; day < 7; day++ {
			for hour := 0; hour < 24; hour++ {
				el(pattern, "pref",
					"day", strconv.Itoa(day),
					"slot", strconv.Itoa(hour*slotsPerHour),
					"pref", "0",
					"prefLevel", "0",
				)
			}
		}

		el(classEl, "time",
			"days", "1010100", "start", "90", "length", "12",
			"timePattern", "1", "datePatternId", "1", "breakTime", "0", "pref", "0")
		el(classEl, "time",
			"days", "0101000", "start", "90", "length", "18",
			"timePattern", "2", "datePatternId", "1", "breakTime", "0", "pref", "0")

		roomGroups := el(classEl, "roomGroups")
		el(roomGroups, "roomGroup", "id", "1", "name", "Default")

		roomPrefs := el(classEl, "roomPreferences")
		for _, room := range p.Rooms {
			el(roomPrefs, "room", "id", roomNum.get(room.ID), "pref", "0")
		}
	}
}

func (p *Problem) appendDistributions(root *element, classNum idMap) {
	distributions := el(root, "distributions")
	dc := p.DistributionConstraints
	if dc == nil {
		return
	}

	for i, group := range dc.MutuallyExclusive {
		distribution := el(distributions, "distribution",
			"id", strconv.Itoa(i+1),
			"type", "DIFF_TIME",
			"required", "true",
			"pref", "1.0",
			"prefLevel", "Required",
		)
		for _, classID := range group {
			el(distribution, "class", "id", classNum.get(classID))
		}
	}

	for i, group := range dc.BackToBack {
		distribution := el(distributions, "distribution",
			"id", strconv.Itoa(i+101),
			"type", "BTB_TIME",
			"required", "true",
			"pref", "1.0",
			"prefLevel", "Required",
		)
		for _, classID := range group {
			el(distribution, "class", "id", classNum.get(classID))
		}
	}
}

func (p *Problem) appendStudents(root *element, classNum idMap) {
	students := el(root, "students")

	addStudent := func(numericID, externalID string, classes []string, weightAll bool) {
		student := el(students, "student",
			"id", numericID,
			"firstName", "Student"+numericID,
			"lastName", "User"+numericID,
			"externalId", externalID,
			"dummy", "false",
			"priority", "0.1",
			"minCredit", "0",
			"maxCredit", "20",
			"projectedCredit", "0",
		)
		el(student, "academicArea", "id", "1")
		el(student, "major", "id", "1")
		el(student, "group", "id", "1")

		if weightAll {
			for _, class := range p.Classes {
				el(student, "class", "id", classNum.get(class.ID), "weight", "1.0")
			}
			return
		}
		for _, classID := range classes {
			el(student, "class", "id", classNum.get(classID), "weight", "1.0")
		}
	}

	if len(p.Students) == 0 {
		// The solver needs at least one student; enroll a synthetic one in
		// every class.
		addStudent("1", "S1", nil, true)
		return
	}

	for i, student := range p.Students {
		numericID := strconv.Itoa(i + 1)
		externalID := student.ID
		if externalID == "" {
			externalID = "S" + numericID
		}
		addStudent(numericID, externalID, student.Classes, false)
	}
}

func classLimit(class Class) int {
	if class.Students > 0 {
		return class.Students
	}
	return 30
}

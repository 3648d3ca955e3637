package seed

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet names recognised in a bulk workbook. The first row of each sheet is a header;
// columns are matched by header name so their order does not matter.
const (
	SheetTeachers         = "teachers"
	SheetStudents         = "students"
	SheetGuardians        = "guardians"
	SheetStudentGuardians = "student_guardians"
)

// LoadWorkbook reads a bulk source from an .xlsx workbook. Link rows keep sheet order.
func LoadWorkbook(path string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck

	ds := &Dataset{}
	sheets := make(map[string]bool)
	for _, name := range f.GetSheetList() {
		sheets[strings.ToLower(strings.TrimSpace(name))] = true
	}

	read := func(sheet string) ([]map[string]string, error) {
		if !sheets[sheet] {
			return nil, nil
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		return records(rows), nil
	}

	teacherRows, err := read(SheetTeachers)
	if err != nil {
		return nil, err
	}
	for _, r := range teacherRows {
		ds.Teachers = append(ds.Teachers, Teacher{
			ID:           r["id"],
			Name:         r["name"],
			Subject:      r["subject"],
			Email:        r["email"],
			EmployeeCode: r["employee_code"],
			Password:     r["password"],
		})
	}

	studentRows, err := read(SheetStudents)
	if err != nil {
		return nil, err
	}
	for _, r := range studentRows {
		ds.Students = append(ds.Students, Student{
			ID:            r["id"],
			Name:          r["name"],
			Grade:         r["grade"],
			Memo:          r["memo"],
			DriveFolderID: r["drive_folder_id"],
			DriveParentID: r["drive_parent_id"],
		})
	}

	guardianRows, err := read(SheetGuardians)
	if err != nil {
		return nil, err
	}
	for _, r := range guardianRows {
		ds.Guardians = append(ds.Guardians, Guardian{
			ID:           r["id"],
			Name:         r["name"],
			Relationship: r["relationship"],
			Email:        r["email"],
		})
	}

	linkRows, err := read(SheetStudentGuardians)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int)
	for _, r := range linkRows {
		studentID, guardianID := r["student_id"], r["guardian_id"]
		if studentID == "" || guardianID == "" {
			continue
		}
		pos, ok := index[studentID]
		if !ok {
			pos = len(ds.Links)
			index[studentID] = pos
			ds.Links = append(ds.Links, Link{StudentID: studentID})
		}
		ds.Links[pos].GuardianIDs = append(ds.Links[pos].GuardianIDs, guardianID)
	}

	return ds, ds.Validate()
}

func records(rows [][]string) []map[string]string {
	if len(rows) < 2 {
		return nil
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(header))
		empty := true
		for i, col := range header {
			if i < len(row) {
				rec[col] = strings.TrimSpace(row[i])
				if rec[col] != "" {
					empty = false
				}
			}
		}
		if !empty {
			out = append(out, rec)
		}
	}
	return out
}

// Package seed reads the authoritative bulk source of master data, either a directory
// of JSON files or a single spreadsheet workbook.
package seed

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Teacher is a bulk teacher row. Password is plain text and hashed on import.
type Teacher struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Subject      string `json:"subject"`
	Email        string `json:"email"`
	EmployeeCode string `json:"employeeCode"`
	Password     string `json:"password"`
}

// Student is a bulk student row.
type Student struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Grade         string `json:"grade"`
	Memo          string `json:"memo"`
	DriveFolderID string `json:"driveFolderId"`
	DriveParentID string `json:"driveParentId"`
}

// Guardian is a bulk guardian row.
type Guardian struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Email        string `json:"email"`
}

// Link ties a student to guardians in priority order; the first guardian is primary.
type Link struct {
	StudentID   string
	GuardianIDs []string
}

// Dataset is the full content of a bulk source.
type Dataset struct {
	Teachers  []Teacher
	Students  []Student
	Guardians []Guardian
	Links     []Link
}

// Load reads a bulk source. Paths ending in .xlsx are read as workbooks, anything else
// as a directory of JSON files. Missing JSON files count as empty.
func Load(source string) (*Dataset, error) {
	if strings.EqualFold(filepath.Ext(source), ".xlsx") {
		return LoadWorkbook(source)
	}
	return LoadDir(source)
}

// LoadDir reads teachers.json, students.json, guardians.json and student_guardians.json.
func LoadDir(dir string) (*Dataset, error) {
	ds := &Dataset{}
	if err := readJSON(filepath.Join(dir, "teachers.json"), &ds.Teachers); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, "students.json"), &ds.Students); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, "guardians.json"), &ds.Guardians); err != nil {
		return nil, err
	}

	var links map[string][]string
	if err := readJSON(filepath.Join(dir, "student_guardians.json"), &links); err != nil {
		return nil, err
	}
	studentIDs := make([]string, 0, len(links))
	for id := range links {
		studentIDs = append(studentIDs, id)
	}
	sort.Strings(studentIDs)
	for _, id := range studentIDs {
		ds.Links = append(ds.Links, Link{StudentID: id, GuardianIDs: links[id]})
	}

	return ds, ds.Validate()
}

// Validate rejects rows without an identifier or name.
func (ds *Dataset) Validate() error {
	for i, t := range ds.Teachers {
		if strings.TrimSpace(t.ID) == "" || strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("teacher row %d: id and name are required", i+1)
		}
	}
	for i, s := range ds.Students {
		if strings.TrimSpace(s.ID) == "" || strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("student row %d: id and name are required", i+1)
		}
	}
	for i, g := range ds.Guardians {
		if strings.TrimSpace(g.ID) == "" || strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("guardian row %d: id and name are required", i+1)
		}
	}
	for _, l := range ds.Links {
		if strings.TrimSpace(l.StudentID) == "" {
			return fmt.Errorf("guardian link without student id")
		}
	}
	return nil
}

func readJSON(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

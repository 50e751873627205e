package processor

import (
	"fmt"
	"os"

	"fwupload/internal/logger"

	"go.uber.org/zap"
)

// Status classifies a candidate firmware path
type Status int

const (
	StatusOK Status = iota
	StatusMissing
	StatusDirectory
	StatusNotRegular
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMissing:
		return "missing"
	case StatusDirectory:
		return "directory"
	case StatusNotRegular:
		return "not-regular"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Validation is the result of classifying one path
type Validation struct {
	Path   string
	Status Status
	Err    error // underlying stat error, if any
}

// OK reports whether the path may be uploaded
func (v Validation) OK() bool {
	return v.Status == StatusOK
}

// Message returns the operator-facing diagnostic for a rejected path
func (v Validation) Message() string {
	switch v.Status {
	case StatusMissing:
		return fmt.Sprintf(" Error: File not found: %s", v.Path)
	case StatusDirectory:
		return fmt.Sprintf(" Error: '%s' is a DIRECTORY!", v.Path)
	case StatusNotRegular:
		return fmt.Sprintf(" Error: '%s' is not a file", v.Path)
	default:
		return ""
	}
}

// Classify stats path without opening it
func Classify(path string) Validation {
	info, err := os.Stat(path)
	if err != nil {
		// any stat failure means the path cannot be seen as existing
		return Validation{Path: path, Status: StatusMissing, Err: err}
	}
	if info.IsDir() {
		return Validation{Path: path, Status: StatusDirectory}
	}
	if !info.Mode().IsRegular() {
		return Validation{Path: path, Status: StatusNotRegular}
	}
	return Validation{Path: path, Status: StatusOK}
}

// ValidatePaths splits paths into accepted and rejected, preserving order
func ValidatePaths(paths []string) (accepted []string, rejected []Validation) {
	log := logger.Get()
	for _, path := range paths {
		v := Classify(path)
		if !v.OK() {
			log.Debug("Rejected firmware path",
				zap.String("path", path),
				zap.Stringer("status", v.Status),
				zap.Error(v.Err))
			rejected = append(rejected, v)
			continue
		}
		accepted = append(accepted, path)
	}
	return accepted, rejected
}

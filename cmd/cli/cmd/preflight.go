package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/jacoco-filter/pkg/errors"
)

// preflight checks the paths of a job before any class is analyzed: the
// input record must be readable, every class directory must exist and the
// output directory must be writable. An empty input is skipped.
func preflight(input string, classDirs []string, output string) error {
	if input != "" {
		f, err := os.Open(input)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidInput, "input record is not readable", err)
		}
		info, err := f.Stat()
		f.Close()
		if err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidInput, "input record is not readable", err)
		}
		if info.IsDir() {
			return apperrors.Newf(apperrors.CodeInvalidInput, "input record %s is a directory", input)
		}
	}

	if len(classDirs) == 0 {
		return apperrors.New(apperrors.CodeInvalidInput, "no class directories given")
	}
	for _, dir := range classDirs {
		if _, err := os.Stat(dir); err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("class directory %s does not exist", dir), err)
		}
	}

	if output == "" {
		return apperrors.New(apperrors.CodeInvalidInput, "no output record given")
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return apperrors.Newf(apperrors.CodeInvalidInput, "output record %s is a directory", output)
	}
	dir := filepath.Dir(output)
	probe, err := os.CreateTemp(dir, ".jacoco-filter-preflight-*")
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("output directory %s is not writable", dir), err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

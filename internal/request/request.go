// Package request defines the JSON slicing request consumed by the CLI and
// the JSON report it writes back.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidRequest marks validation failures; callers test with errors.Is.
var ErrInvalidRequest = errors.New("invalid slice request")

// SliceRequest names one seed value inside a project and the slicing
// direction. Backward defaults to true when the field is absent.
type SliceRequest struct {
	RequestID   string `json:"slicing_request_id"`
	ProjectPath string `json:"project_path"`
	FilePath    string `json:"file_path"`
	SeedLine    int    `json:"seed_line_number"`
	SeedName    string `json:"seed_name"`
	Backward    bool   `json:"is_backward"`
}

// Load reads and validates a request file. defaultBackward applies when the
// file omits is_backward.
func Load(path string, defaultBackward bool) (*SliceRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading request: %w", err)
	}

	aux := struct {
		RequestID   string `json:"slicing_request_id"`
		ProjectPath string `json:"project_path"`
		FilePath    string `json:"file_path"`
		SeedLine    int    `json:"seed_line_number"`
		SeedName    string `json:"seed_name"`
		Backward    *bool  `json:"is_backward"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return nil, fmt.Errorf("parsing request: %w", err)
	}

	req := &SliceRequest{
		RequestID:   aux.RequestID,
		ProjectPath: filepath.Clean(aux.ProjectPath),
		FilePath:    filepath.Clean(aux.FilePath),
		SeedLine:    aux.SeedLine,
		SeedName:    aux.SeedName,
		Backward:    defaultBackward,
	}
	if aux.Backward != nil {
		req.Backward = *aux.Backward
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// Validate checks that the request names an existing file inside the project
// and a plausible seed.
func (r *SliceRequest) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("%w: slicing_request_id is required", ErrInvalidRequest)
	}
	info, err := os.Stat(r.ProjectPath)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: project path %q is not a directory", ErrInvalidRequest, r.ProjectPath)
	}
	if _, err := os.Stat(r.FilePath); err != nil {
		return fmt.Errorf("%w: file %q does not exist", ErrInvalidRequest, r.FilePath)
	}
	rel, err := filepath.Rel(r.ProjectPath, r.FilePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%w: file %q is outside project %q", ErrInvalidRequest, r.FilePath, r.ProjectPath)
	}
	if r.SeedLine < 1 {
		return fmt.Errorf("%w: seed_line_number must be >= 1, got %d", ErrInvalidRequest, r.SeedLine)
	}
	if r.SeedName == "" {
		return fmt.Errorf("%w: seed_name is required", ErrInvalidRequest)
	}
	return nil
}

// Description renders the request for logs.
func (r *SliceRequest) Description() string {
	dir := "backward"
	if !r.Backward {
		dir = "forward"
	}
	return fmt.Sprintf("request %s: %s slice of `%s` at %s:%d",
		r.RequestID, dir, r.SeedName, r.FilePath, r.SeedLine)
}

// Report is the slicing result: for each relevant function, the sorted
// absolute line numbers that belong to the slice.
type Report struct {
	RequestID string           `json:"slicing_request_id"`
	Functions map[string][]int `json:"relevant_function_names_to_line_numbers"`
}

// NewReport returns an empty report for the request.
func NewReport(requestID string) *Report {
	return &Report{RequestID: requestID, Functions: make(map[string][]int)}
}

// Merge adds line numbers under a function name, keeping the stored slice
// sorted and free of duplicates. Merging the same lines twice is a no-op.
func (rp *Report) Merge(function string, lines []int) {
	if len(lines) == 0 {
		return
	}
	seen := make(map[int]struct{}, len(rp.Functions[function])+len(lines))
	merged := rp.Functions[function][:0:0]
	for _, n := range rp.Functions[function] {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		merged = append(merged, n)
	}
	for _, n := range lines {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		merged = append(merged, n)
	}
	sort.Ints(merged)
	rp.Functions[function] = merged
}

// Save writes the report as slice_info_<id>.json under dir.
func (rp *Report) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("slice_info_%s.json", rp.RequestID))
	data, err := json.MarshalIndent(rp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

package model

import "strings"

type Source string

const (
	SourceFile Source = "file"
	SourceArg  Source = "direct-argument"
)

// Stage is the engine pipeline step that reported a file.
type Stage string

const (
	StagePreProcess  Stage = "pre_process"
	StageProcess     Stage = "process"
	StagePostProcess Stage = "post_process"
)

func (s Stage) Valid() bool {
	switch s {
	case StagePreProcess, StageProcess, StagePostProcess:
		return true
	default:
		return false
	}
}

type ProducedFile struct {
	Path  string `json:"path"`
	Stage Stage  `json:"stage"`
}

// Record is the per-URL state carried through classification, resolution,
// composition, invocation and reporting. One Record per input line; never
// reused across runs.
type Record struct {
	URL             string
	Source          Source
	Line            int
	InvocationArgs  []string
	ExtractorID     string
	ResolvedProfile string
	Errors          []string
	ProducedFiles   map[string]Stage
	Completed       bool
	Phase           string
}

func NewRecord(url string, source Source, line int, args []string) *Record {
	return &Record{
		URL:            url,
		Source:         source,
		Line:           line,
		InvocationArgs: append([]string(nil), args...),
		ProducedFiles:  make(map[string]Stage),
		Phase:          PhaseCreated,
	}
}

// Key is the lowercase extractor id used for profile lookups.
func (r *Record) Key() string {
	return strings.ToLower(strings.TrimSpace(r.ExtractorID))
}

func (r *Record) HasError() bool {
	return len(r.Errors) > 0
}

func (r *Record) AddError(msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	r.Errors = append(r.Errors, msg)
}

func (r *Record) AddFile(path string, stage Stage) {
	if strings.TrimSpace(path) == "" {
		return
	}
	if r.ProducedFiles == nil {
		r.ProducedFiles = make(map[string]Stage)
	}
	// a later stage for the same path wins; post-process implies the file landed
	if prev, ok := r.ProducedFiles[path]; ok && stageRank(prev) > stageRank(stage) {
		return
	}
	r.ProducedFiles[path] = stage
}

// Label is the best-known extractor name for user-facing lines.
func (r *Record) Label() string {
	if strings.TrimSpace(r.ExtractorID) == "" {
		return "unknown"
	}
	return r.ExtractorID
}

func stageRank(s Stage) int {
	switch s {
	case StagePreProcess:
		return 1
	case StageProcess:
		return 2
	case StagePostProcess:
		return 3
	default:
		return 0
	}
}

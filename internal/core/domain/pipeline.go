package domain

import (
	"fmt"
	"time"
)

// PipelineState is the aggregate derived from one snapshot. Each stage holds
// the first file found for its category; nil means the stage has not started.
type PipelineState struct {
	Source  *ReportFile
	Extract *ReportFile
	Output  *ReportFile

	ProcessingCount int
	CompletedCount  int
	PresentStages   int
	HasFailed       bool
}

// DerivePipeline builds the pipeline view from a snapshot. A file in error
// at any stage marks the pipeline as failed.
func DerivePipeline(files []ReportFile) PipelineState {
	var state PipelineState
	for i := range files {
		file := files[i]
		switch file.Category {
		case CategorySource:
			if state.Source == nil {
				state.Source = &file
			}
		case CategoryExtract:
			if state.Extract == nil {
				state.Extract = &file
			}
		case CategoryOutput:
			if state.Output == nil {
				state.Output = &file
			}
		}
	}

	for _, file := range state.Stages() {
		if file == nil {
			continue
		}
		state.PresentStages++
		switch file.Status {
		case FileStatusProcessing:
			state.ProcessingCount++
		case FileStatusDone:
			state.CompletedCount++
		case FileStatusError:
			state.HasFailed = true
		}
	}
	return state
}

// Stages returns source, extract and output in pipeline order.
func (p PipelineState) Stages() []*ReportFile {
	return []*ReportFile{p.Source, p.Extract, p.Output}
}

func (p PipelineState) Stage(category FileCategory) *ReportFile {
	switch category {
	case CategorySource:
		return p.Source
	case CategoryExtract:
		return p.Extract
	case CategoryOutput:
		return p.Output
	default:
		return nil
	}
}

// HasSource reports whether the source document has been registered. A
// report without one is waiting for its upload, which is not an error.
func (p PipelineState) HasSource() bool {
	return p.Source != nil
}

func (p PipelineState) MissingStages() []FileCategory {
	var out []FileCategory
	for _, category := range PipelineCategories {
		if p.Stage(category) == nil {
			out = append(out, category)
		}
	}
	return out
}

// Complete is true once all three stages exist and are done.
func (p PipelineState) Complete() bool {
	return p.PresentStages == len(PipelineCategories) && p.CompletedCount == p.PresentStages
}

func (p PipelineState) Summary() string {
	switch {
	case !p.HasSource():
		return "Awaiting upload"
	case p.HasFailed:
		return "Error"
	case p.ProcessingCount > 0:
		return "Processing"
	default:
		return fmt.Sprintf("%d/%d Complete", p.CompletedCount, p.PresentStages)
	}
}

// StatusTransition records a file observed in a new status between two
// consecutive snapshots. From is empty for files seen for the first time.
type StatusTransition struct {
	ReportID int64
	FileID   int64
	Category FileCategory
	From     FileStatus
	To       FileStatus
	Error    string
}

// DiffSnapshots lists the files whose status differs between prev and next,
// in next's order. Files that disappeared are not reported.
func DiffSnapshots(prev, next []ReportFile) []StatusTransition {
	before := make(map[int64]FileStatus, len(prev))
	for _, file := range prev {
		before[file.ID] = file.Status
	}

	var out []StatusTransition
	for _, file := range next {
		from, seen := before[file.ID]
		if seen && from == file.Status {
			continue
		}
		out = append(out, StatusTransition{
			ReportID: file.ReportID,
			FileID:   file.ID,
			Category: file.Category,
			From:     from,
			To:       file.Status,
			Error:    file.Error,
		})
	}
	return out
}

// RecordedTransition is a StatusTransition with the time it was observed.
type RecordedTransition struct {
	StatusTransition
	ObservedAt time.Time
}

package state

import "time"

// State is the persisted checkpoint of a file-fed agent.
// It is saved after each contiguous run of acknowledged records.
type State struct {
	// Path is the input file the offsets refer to
	Path string `json:"path"`

	// Offset is the byte offset just past the last acknowledged line
	Offset int64 `json:"offset"`

	// SeqNum is the stream sequence number of the last acknowledged line
	SeqNum uint64 `json:"seq_num"`

	// Records is the number of lines acknowledged since the state was created
	Records uint64 `json:"records"`

	// LastCommitAt is the timestamp of the last checkpoint
	LastCommitAt time.Time `json:"last_commit_at"`
}

// IsEmpty returns true if the state has not been initialized.
func (s State) IsEmpty() bool {
	return s.Path == "" && s.Offset == 0
}

// ResumeOffset returns the offset to resume reading path from.
// A checkpoint for a different file is ignored.
func (s State) ResumeOffset(path string) int64 {
	if s.Path != path {
		return 0
	}
	return s.Offset
}

// Advance records an acknowledged line ending at offset.
func (s *State) Advance(path string, offset int64, seqNum uint64) {
	s.Path = path
	s.Offset = offset
	s.SeqNum = seqNum
	s.Records++
	s.LastCommitAt = time.Now()
}

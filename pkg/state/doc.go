// Package state provides checkpoint persistence for resumable appends.
//
// A file-fed agent records the byte offset just past the last line whose
// append was acknowledged, together with that line's sequence number, so
// a restart resumes without re-sending acknowledged lines. Lines after the
// checkpoint may have been appended already if the agent stopped before
// it could persist the newer offset; those are sent again.
//
// # Usage
//
// Create a file-based repository:
//
//	repo := state.NewFileRepository("/path/to/state/dir")
//
//	s, err := repo.Load(ctx)
//	if err != nil {
//	    return err
//	}
//	offset := s.ResumeOffset(inputPath)
//
//	// ... after an acknowledged line ...
//	s.Advance(inputPath, lineEnd, ack.SeqNum)
//	if err := repo.Save(ctx, s); err != nil {
//	    return err
//	}
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
//
// See version.go for version constants that can be used programmatically.
package state

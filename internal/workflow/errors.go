package workflow

import "github.com/rotisserie/eris"

// Workflow failure taxonomy. Every failure is surfaced as a single
// user-visible message and returns the session to an editable state; none is
// fatal to the process.
var (
	// ErrUnsupportedFileType is returned when the document's media type is
	// not PDF, PNG, or JPEG.
	ErrUnsupportedFileType = eris.New("workflow: unsupported file type")

	// ErrExtractionRejected is returned when the extraction service refuses
	// the document or responds with neither a success indicator nor a job
	// identifier.
	ErrExtractionRejected = eris.New("workflow: extraction rejected")

	// ErrExtractionTimeout is returned when the poll attempt budget is
	// exhausted and the best-effort result fetch yields nothing usable.
	ErrExtractionTimeout = eris.New("workflow: extraction timed out")

	// ErrExtractionEmpty is returned when the extraction result contains no
	// usable data.
	ErrExtractionEmpty = eris.New("workflow: no data extracted")

	// ErrSuperseded is returned to a submission whose in-flight job was
	// orphaned by a newer submission. The newer job owns the session.
	ErrSuperseded = eris.New("workflow: submission superseded")
)

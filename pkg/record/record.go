package record

// Header is a name/value pair attached to a record.
type Header struct {
	Name  []byte
	Value []byte
}

// Record is a single append unit.
// Records are treated as immutable once handed to the pipeline.
type Record struct {
	// Body is the opaque record payload
	Body []byte

	// Headers are optional ordered name/value pairs
	Headers []Header

	// Timestamp is an optional client-assigned timestamp in milliseconds
	Timestamp *uint64
}

// recordOverheadBytes is the fixed per-record metering overhead.
const recordOverheadBytes = 8

// MeteredBytes returns the size the stream service charges for the record.
// It is used for every batch byte limit.
func (r Record) MeteredBytes() int {
	n := recordOverheadBytes + 2*len(r.Headers) + len(r.Body)
	for _, h := range r.Headers {
		n += len(h.Name) + len(h.Value)
	}
	return n
}

// NewRecord creates a record with the given body and no headers.
func NewRecord(body []byte) Record {
	return Record{Body: body}
}

// WithHeader returns a copy of r with the header appended.
// The original header slice is never modified.
func (r Record) WithHeader(name, value string) Record {
	headers := make([]Header, len(r.Headers), len(r.Headers)+1)
	copy(headers, r.Headers)
	r.Headers = append(headers, Header{Name: []byte(name), Value: []byte(value)})
	return r
}

// WithTimestamp returns a copy of r carrying the given timestamp.
func (r Record) WithTimestamp(ms uint64) Record {
	r.Timestamp = &ms
	return r
}

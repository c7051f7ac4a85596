// Package journal records a bounded transcript of a mail session's wire
// traffic. Entries mirror the engine's logSent/logReceived streams,
// including the engine's "*** " annotations for out-of-band happenings.
// A transcript can be exported as MessagePack for compact storage or
// shipping to a diagnostics endpoint.
package journal

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/tinylib/msgp/msgp"
)

// Direction classifies a journal entry.
type Direction uint8

const (
	// DirSent marks bytes written to the server.
	DirSent Direction = iota
	// DirReceived marks bytes read from the server.
	DirReceived
	// DirNote marks an out-of-band annotation ("*** connectToHost: ...").
	DirNote
)

// String returns a one-character marker in the conventional C:/S: style.
func (d Direction) String() string {
	switch d {
	case DirSent:
		return "C"
	case DirReceived:
		return "S"
	default:
		return "*"
	}
}

// Entry is one recorded exchange fragment.
type Entry struct {
	// Seq numbers entries from 1 in session order.
	Seq int64

	// Dir tells which side produced the bytes.
	Dir Direction

	// At is the local wall-clock time the entry was recorded.
	At time.Time

	// Data holds the raw bytes or annotation text.
	Data []byte
}

// Journal is a bounded in-memory transcript. When the limit is reached the
// oldest entries are dropped; Dropped reports how many.
type Journal struct {
	mu      sync.Mutex
	id      string
	limit   int
	seq     int64
	dropped int64
	entries []Entry
}

// DefaultLimit is the entry cap used when New is given a non-positive limit.
const DefaultLimit = 1024

// New creates a Journal with a fresh ULID session id.
func New(limit int) *Journal {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Journal{
		id:    ulid.Make().String(),
		limit: limit,
	}
}

// ID returns the session's ULID.
func (j *Journal) ID() string {
	return j.id
}

// Sent records bytes written to the server.
func (j *Journal) Sent(data []byte) {
	j.record(DirSent, data)
}

// Received records bytes read from the server.
func (j *Journal) Received(data []byte) {
	j.record(DirReceived, data)
}

// Note records an out-of-band annotation.
func (j *Journal) Note(text string) {
	j.record(DirNote, []byte(text))
}

func (j *Journal) record(dir Direction, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq++
	j.entries = append(j.entries, Entry{Seq: j.seq, Dir: dir, At: time.Now(), Data: cp})
	if len(j.entries) > j.limit {
		over := len(j.entries) - j.limit
		j.entries = append(j.entries[:0], j.entries[over:]...)
		j.dropped += int64(over)
	}
}

// Entries returns a snapshot of the recorded entries in order.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Dropped returns how many entries were discarded to stay under the limit.
func (j *Journal) Dropped() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// MarshalMsg encodes the transcript as MessagePack:
// [id, dropped, [[seq, dir, at, data], ...]].
func (j *Journal) MarshalMsg() ([]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	o := make([]byte, 0, 64+len(j.entries)*48)
	o = msgp.AppendArrayHeader(o, 3)
	o = msgp.AppendString(o, j.id)
	o = msgp.AppendInt64(o, j.dropped)
	o = msgp.AppendArrayHeader(o, uint32(len(j.entries)))
	for _, e := range j.entries {
		o = msgp.AppendArrayHeader(o, 4)
		o = msgp.AppendInt64(o, e.Seq)
		o = msgp.AppendUint8(o, uint8(e.Dir))
		o = msgp.AppendTime(o, e.At)
		o = msgp.AppendBytes(o, e.Data)
	}
	return o, nil
}

// Transcript is the decoded form of an exported journal.
type Transcript struct {
	ID      string
	Dropped int64
	Entries []Entry
}

// UnmarshalMsg decodes a MessagePack transcript produced by MarshalMsg.
func UnmarshalMsg(b []byte) (*Transcript, error) {
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	if sz != 3 {
		return nil, msgp.ArrayError{Wanted: 3, Got: sz}
	}

	var tr Transcript
	if tr.ID, b, err = msgp.ReadStringBytes(b); err != nil {
		return nil, err
	}
	if tr.Dropped, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return nil, err
	}

	var n uint32
	if n, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
		return nil, err
	}
	tr.Entries = make([]Entry, 0, n)
	for i := uint32(0); i < n; i++ {
		var esz uint32
		if esz, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
			return nil, err
		}
		if esz != 4 {
			return nil, msgp.ArrayError{Wanted: 4, Got: esz}
		}
		var e Entry
		if e.Seq, b, err = msgp.ReadInt64Bytes(b); err != nil {
			return nil, err
		}
		var dir uint8
		if dir, b, err = msgp.ReadUint8Bytes(b); err != nil {
			return nil, err
		}
		e.Dir = Direction(dir)
		if e.At, b, err = msgp.ReadTimeBytes(b); err != nil {
			return nil, err
		}
		if e.Data, b, err = msgp.ReadBytesBytes(b, nil); err != nil {
			return nil, err
		}
		tr.Entries = append(tr.Entries, e)
	}
	return &tr, nil
}

package entities

import (
	"encoding/binary"
	"time"

	domainerrors "govledger/contexts/governance/proposal-ledger/domain/errors"
)

const voterRecordSize = IdentitySize + 1 + 1

// RecordSize is the fixed byte size of a stored proposal. Every record
// reserves room for MaxVoters ballots and full-length text.
const RecordSize = IdentitySize + // author
	4 + MaxTitleLen + // title
	4 + MaxDescriptionLen + // description
	IdentitySize + // subject
	8 + // created_at
	8 + // expiration_time
	4 + // yes_votes
	4 + // no_votes
	4 + // unique_voters
	4 + voterRecordSize*MaxVoters + // voters
	1 + // closed
	2 // outcome

var outcomeCodes = map[Outcome]byte{
	OutcomeYesWins: 0,
	OutcomeNoWins:  1,
	OutcomeTied:    2,
}

var outcomesByCode = map[byte]Outcome{
	0: OutcomeYesWins,
	1: OutcomeNoWins,
	2: OutcomeTied,
}

// MarshalBinary encodes the record into exactly RecordSize little-endian
// bytes. The handle is not stored; it is derived again on decode.
func (p Proposal) MarshalBinary() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, RecordSize)
	w := layoutWriter{buf: buf}
	w.identity(p.Author)
	w.text(p.Title, MaxTitleLen)
	w.text(p.Description, MaxDescriptionLen)
	w.identity(p.Subject)
	w.u64(uint64(p.CreatedAt.Unix()))
	w.u64(uint64(p.ExpirationTime.Unix()))
	w.u32(p.YesVotes)
	w.u32(p.NoVotes)
	w.u32(p.UniqueVoters)
	w.u32(uint32(p.voterCount))
	for i := 0; i < MaxVoters; i++ {
		record := p.voters[i]
		if i >= p.voterCount {
			record = VoterRecord{}
		}
		w.identity(record.Voter)
		w.flag(record.VotedYes)
		w.flag(record.VotedNo)
	}
	w.flag(p.Closed)
	if p.Outcome == OutcomeNone {
		w.bytes([]byte{0, 0})
	} else {
		w.bytes([]byte{1, outcomeCodes[p.Outcome]})
	}
	return buf, nil
}

func (p *Proposal) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return domainerrors.ErrCorruptRecord
	}
	r := layoutReader{buf: data}
	var decoded Proposal
	decoded.Author = r.identity()
	title, ok := r.text(MaxTitleLen)
	if !ok {
		return domainerrors.ErrCorruptRecord
	}
	description, ok := r.text(MaxDescriptionLen)
	if !ok {
		return domainerrors.ErrCorruptRecord
	}
	decoded.Title = title
	decoded.Description = description
	decoded.Subject = r.identity()
	decoded.CreatedAt = time.Unix(int64(r.u64()), 0).UTC()
	decoded.ExpirationTime = time.Unix(int64(r.u64()), 0).UTC()
	decoded.YesVotes = r.u32()
	decoded.NoVotes = r.u32()
	decoded.UniqueVoters = r.u32()
	count := r.u32()
	if count > MaxVoters {
		return domainerrors.ErrCorruptRecord
	}
	decoded.voterCount = int(count)
	for i := 0; i < MaxVoters; i++ {
		record := VoterRecord{Voter: r.identity()}
		record.VotedYes = r.flag()
		record.VotedNo = r.flag()
		if i < decoded.voterCount {
			decoded.voters[i] = record
		}
	}
	decoded.Closed = r.flag()
	outcome := r.bytes(2)
	switch outcome[0] {
	case 0:
		decoded.Outcome = OutcomeNone
	case 1:
		value, ok := outcomesByCode[outcome[1]]
		if !ok {
			return domainerrors.ErrCorruptRecord
		}
		decoded.Outcome = value
	default:
		return domainerrors.ErrCorruptRecord
	}
	if err := decoded.Validate(); err != nil {
		return err
	}
	decoded.Handle = DeriveHandle(decoded.Author, decoded.Title)
	*p = decoded
	return nil
}

type layoutWriter struct {
	buf []byte
	off int
}

func (w *layoutWriter) bytes(value []byte) {
	copy(w.buf[w.off:], value)
	w.off += len(value)
}

func (w *layoutWriter) identity(id Identity) {
	w.bytes(id[:])
}

func (w *layoutWriter) text(value string, capacity int) {
	w.u32(uint32(len(value)))
	copy(w.buf[w.off:w.off+capacity], value)
	w.off += capacity
}

func (w *layoutWriter) u32(value uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], value)
	w.off += 4
}

func (w *layoutWriter) u64(value uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:], value)
	w.off += 8
}

func (w *layoutWriter) flag(value bool) {
	if value {
		w.buf[w.off] = 1
	}
	w.off++
}

type layoutReader struct {
	buf []byte
	off int
}

func (r *layoutReader) bytes(n int) []byte {
	value := r.buf[r.off : r.off+n]
	r.off += n
	return value
}

func (r *layoutReader) identity() Identity {
	var id Identity
	copy(id[:], r.bytes(IdentitySize))
	return id
}

func (r *layoutReader) text(capacity int) (string, bool) {
	length := r.u32()
	raw := r.bytes(capacity)
	if length > uint32(capacity) {
		return "", false
	}
	return string(raw[:length]), true
}

func (r *layoutReader) u32() uint32 {
	return binary.LittleEndian.Uint32(r.bytes(4))
}

func (r *layoutReader) u64() uint64 {
	return binary.LittleEndian.Uint64(r.bytes(8))
}

func (r *layoutReader) flag() bool {
	return r.bytes(1)[0] != 0
}

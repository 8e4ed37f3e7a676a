package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Room is a two-party chat room tied to a lending listing. The lender and
// borrower are fixed at creation; only leave state and the denormalized
// last-message fields change over the room's life.
type Room struct {
	ID            int64      `db:"id" json:"-"`
	RoomKey       string     `db:"room_key" json:"room_key"`
	ListingID     int64      `db:"listing_id" json:"listing_id"`
	LenderID      int64      `db:"lender_id" json:"lender_id"`
	BorrowerID    int64      `db:"borrower_id" json:"borrower_id"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	LeftMembers   MemberSet  `db:"left_members" json:"-"`
	LeftTimes     LeftTimes  `db:"left_times" json:"-"`
	LastMessage   *string    `db:"last_message" json:"last_message,omitempty"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// BelongsTo reports whether the user is one of the room's two members.
func (r *Room) BelongsTo(userID int64) bool {
	return r.LenderID == userID || r.BorrowerID == userID
}

// OtherUserID returns the opposite member for a given member.
func (r *Room) OtherUserID(userID int64) int64 {
	if r.LenderID == userID {
		return r.BorrowerID
	}
	return r.LenderID
}

// UpdateLastMessage refreshes the denormalized last-message fields.
func (r *Room) UpdateLastMessage(body string, at time.Time) {
	r.LastMessage = &body
	r.LastMessageAt = &at
}

// MarkLeft records that a member left the room at the given time. Calling it
// again for the same member only moves the recorded timestamp.
func (r *Room) MarkLeft(userID int64, at time.Time) {
	r.LeftMembers = r.LeftMembers.Add(userID)
	if r.LeftTimes == nil {
		r.LeftTimes = LeftTimes{}
	}
	r.LeftTimes[memberKey(userID)] = at.Format(time.RFC3339Nano)
}

// HasLeft reports whether the member is currently marked as having left.
func (r *Room) HasLeft(userID int64) bool {
	return r.LeftMembers.Contains(userID)
}

// LeftTimestamp returns when the member left, or nil if they have not left or
// the stored record cannot be parsed. A corrupt record for one member never
// blocks reading the other's.
func (r *Room) LeftTimestamp(userID int64) *time.Time {
	raw, ok := r.LeftTimes[memberKey(userID)]
	if !ok {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	return &t
}

// Rejoin clears the member's leave state. No-op if they had not left.
func (r *Room) Rejoin(userID int64) {
	r.LeftMembers = r.LeftMembers.Remove(userID)
	delete(r.LeftTimes, memberKey(userID))
}

// ResetLeaveState wipes all leave state and forces the room active.
func (r *Room) ResetLeaveState() {
	r.LeftMembers = nil
	r.LeftTimes = nil
	r.IsActive = true
}

// IsEmpty reports whether both members have left. An empty room is kept until
// duplicate cleanup explicitly removes it.
func (r *Room) IsEmpty() bool {
	return r.HasLeft(r.LenderID) && r.HasLeft(r.BorrowerID)
}

// HasActiveMembers reports whether at least one member has not left.
func (r *Room) HasActiveMembers() bool {
	return !r.HasLeft(r.LenderID) || !r.HasLeft(r.BorrowerID)
}

func memberKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// MemberSet is a set of member ids stored as a JSON array column.
type MemberSet []int64

// Contains reports set membership; a nil set contains nothing.
func (s MemberSet) Contains(id int64) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Add returns the set with id included.
func (s MemberSet) Add(id int64) MemberSet {
	if s.Contains(id) {
		return s
	}
	return append(s, id)
}

// Remove returns the set without id.
func (s MemberSet) Remove(id int64) MemberSet {
	out := s[:0]
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s MemberSet) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int64(s))
}

func (s *MemberSet) Scan(src interface{}) error {
	return scanJSON(src, (*[]int64)(s))
}

// LeftTimes maps a member id to the RFC 3339 timestamp of their departure,
// stored as a JSON object column. Values are kept as strings so that a
// malformed record degrades to "no timestamp" on read instead of failing
// the whole row decode.
type LeftTimes map[string]string

func (t LeftTimes) Value() (driver.Value, error) {
	if t == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(t))
}

func (t *LeftTimes) Scan(src interface{}) error {
	return scanJSON(src, (*map[string]string)(t))
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported scan type %T", src)
	}
}

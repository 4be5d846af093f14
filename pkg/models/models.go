package models

import (
	"time"
)

// Span is a contiguous character range over a sentence's text, measured in
// rune offsets. Begin is inclusive, End is exclusive.
type Span struct {
	Begin int `json:"begin"`
	End   int `json:"end"`
}

// Annotation is a point-style tag: a type name with the numeric range nested
// under value. The nested shape is distinct from SpanAnnotation and both
// shapes are preserved on the wire.
type Annotation struct {
	Type  string `json:"type"`
	Value Span   `json:"value"`
}

// SpanAnnotation is a flat span tag over a contiguous text range.
type SpanAnnotation struct {
	Type  string `json:"type"`
	Begin int    `json:"begin"`
	End   int    `json:"end"`
}

// Sentence is the sole document entity: a raw text string plus its
// annotation metadata.
//
// ReadableID is a human-facing sequential identifier distinct from the
// store's record id. It is assigned at creation time from an atomic counter
// record, so two concurrent inserts can never share a ReadableID.
//
// Username is a denormalized copy of the creating user's name at creation
// time; it is not kept in sync with later account changes.
type Sentence struct {
	ID              SentenceID       `json:"id"`
	Sentence        string           `json:"sentence"`
	Annotations     []Annotation     `json:"annotations"`
	SpanAnnotations []SpanAnnotation `json:"spanAnnotations"`
	ZScore          float64          `json:"zScore"`
	ReadableID      int64            `json:"readableId"`
	CreatedAt       time.Time        `json:"createdAt"`
	Owner           UserID           `json:"owner"`
	Username        string           `json:"username"`
}

// User is a minimal account record. PasswordHash is a bcrypt hash; handlers
// clear it before writing a User to a response.
type User struct {
	ID           UserID    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

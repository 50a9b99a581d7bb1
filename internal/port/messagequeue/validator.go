package messagequeue

import (
	"encoding/json"
	"fmt"
)

// newPayload maps each subject to a fresh instance of its schema struct.
// Subjects without an entry pass validation, so new message types can ship
// before every consumer learns them.
var newPayload = map[string]func() any{
	SubjectMessageCreated:  func() any { return &MessageCreatedPayload{} },
	SubjectSessionStatus:   func() any { return &SessionStatusPayload{} },
	SubjectSessionFinished: func() any { return &SessionFinishedPayload{} },
	SubjectConnectionState: func() any { return &ConnectionStatePayload{} },
}

// Validate checks that data is well-formed JSON and, for known subjects,
// that it unmarshals into the subject's schema.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}
	build, known := newPayload[subject]
	if !known {
		return nil
	}
	if err := json.Unmarshal(data, build()); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}

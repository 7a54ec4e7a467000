package feed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"VitalWatch/internal/domain/models"
)

// ErrMalformedLine is returned for feed lines that cannot be parsed.
var ErrMalformedLine = errors.New("malformed feed line")

// ParseLine parses one feed line of the form
//
//	patientId,value,label,timestamp[,extra...]
//
// Values may carry a trailing percent sign. Lines labelled Alert carry
// "triggered" or "resolved" in the value position. Category validation is
// left to the store.
func ParseLine(line string) (models.FeedEvent, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) < 4 {
		return models.FeedEvent{}, fmt.Errorf("%w: want at least 4 fields, got %d", ErrMalformedLine, len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return models.FeedEvent{}, fmt.Errorf("%w: patient id %q", ErrMalformedLine, parts[0])
	}
	ts, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return models.FeedEvent{}, fmt.Errorf("%w: timestamp %q", ErrMalformedLine, parts[3])
	}
	ev := models.FeedEvent{SubjectID: id, Label: parts[2], Timestamp: ts}
	if ev.Label == "" {
		return models.FeedEvent{}, fmt.Errorf("%w: empty label", ErrMalformedLine)
	}

	if ev.IsAlert() {
		switch state := strings.ToLower(parts[1]); state {
		case models.AlertTriggered, models.AlertResolved:
			ev.AlertState = state
			return ev, nil
		default:
			return models.FeedEvent{}, fmt.Errorf("%w: alert state %q", ErrMalformedLine, parts[1])
		}
	}

	v, err := strconv.ParseFloat(strings.TrimSuffix(parts[1], "%"), 64)
	if err != nil {
		return models.FeedEvent{}, fmt.Errorf("%w: value %q", ErrMalformedLine, parts[1])
	}
	ev.Value = v
	return ev, nil
}

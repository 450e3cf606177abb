package outbox

import (
	"errors"
	"testing"
)

func TestValidateEvent(t *testing.T) {
	valid := Event{Source: "order", SourceID: "42", Channel: "orders", Payload: []byte(`{"id":42}`)}

	cases := []struct {
		name  string
		event func(Event) Event
		field string
		err   error
	}{
		{
			name:  "missing source",
			event: func(ev Event) Event { ev.Source = ""; return ev },
			field: "source",
			err:   ErrSourceRequired,
		},
		{
			name:  "whitespace source",
			event: func(ev Event) Event { ev.Source = " \t"; return ev },
			field: "source",
			err:   ErrSourceRequired,
		},
		{
			name:  "missing source id",
			event: func(ev Event) Event { ev.SourceID = ""; return ev },
			field: "sourceId",
			err:   ErrSourceIDRequired,
		},
		{
			name:  "whitespace channel",
			event: func(ev Event) Event { ev.Channel = " "; return ev },
			field: "channel",
			err:   ErrChannelRequired,
		},
		{
			name:  "missing payload",
			event: func(ev Event) Event { ev.Payload = nil; return ev },
			field: "payload",
			err:   ErrPayloadRequired,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateEvent(tc.event(valid))
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
			if !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("expected ErrInvalidEvent, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.field {
				t.Fatalf("expected validation error on %q, got %v", tc.field, err)
			}
		})
	}

	if err := ValidateEvent(valid); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}
}

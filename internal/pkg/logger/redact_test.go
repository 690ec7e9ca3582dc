package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	cases := map[string]string{
		"john.doe@example.com": "jo***@example.com",
		"ab@example.com":       "***@example.com",
		"not-an-email":         "***@***",
	}
	for in, want := range cases {
		if got := RedactEmail(in); got != want {
			t.Errorf("RedactEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactPhone(t *testing.T) {
	cases := map[string]string{
		"+1 (555) 555-0123": "***23",
		"5555550199":        "***99",
		"x":                 "***",
	}
	for in, want := range cases {
		if got := RedactPhone(in); got != want {
			t.Errorf("RedactPhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactPIIValueByKey(t *testing.T) {
	if got := redactPIIValue("phone", "+15555550123"); got != "***23" {
		t.Errorf("phone key: got %q", got)
	}
	if got := redactPIIValue("recipient_email", "ann@example.com"); got != "an***@example.com" {
		t.Errorf("email key: got %q", got)
	}
	if got := redactPIIValue("detail", "bounce from ann@example.com"); got != "bounce from an***@example.com" {
		t.Errorf("embedded email: got %q", got)
	}
}

// Identifiers and timestamps in generic fields must survive redaction
// untouched, or logs become useless for tracing enrollments.
func TestRedactPIIValueLeavesIdentifiersAlone(t *testing.T) {
	cases := map[string]string{
		"enrollment_id": "77e31d1d-0afc-4b2e-84e6-3135a0f12acd",
		"sequence_id":   "9f40181f-070c-4749-af63-0c2447bc985b",
		"due_at":        "2026-03-01T09:00:00Z",
		"last_tick":     "2026-03-01 09:00:00 +0000 UTC",
		"attempt":       "3",
	}
	for key, val := range cases {
		if got := redactPIIValue(key, val); got != val {
			t.Errorf("redactPIIValue(%q, %q) = %q, want unchanged", key, val, got)
		}
	}
}

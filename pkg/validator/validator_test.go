package validator

import (
	"errors"
	"strings"
	"testing"
)

type bookingRequest struct {
	TeacherID string  `json:"teacher_id" validate:"required"`
	StudentID string  `json:"student_id" validate:"required,nefield=TeacherID"`
	Hours     float64 `json:"duration_hours" validate:"gt=0"`
	Mode      string  `json:"mode" validate:"required,oneof=online offline"`
}

func TestValidateUsesJSONNames(t *testing.T) {
	v := NewValidator()

	err := v.Validate(bookingRequest{StudentID: "s", Hours: 0, Mode: "carrier-pigeon"})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	for _, field := range []string{"teacher_id", "duration_hours", "mode"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("expected %s in %v", field, verr.Fields)
		}
	}
	if !strings.Contains(verr.Fields["mode"], "online offline") {
		t.Fatalf("unexpected mode message %q", verr.Fields["mode"])
	}
}

func TestValidateSameParticipant(t *testing.T) {
	v := NewValidator()

	err := v.Validate(bookingRequest{TeacherID: "u1", StudentID: "u1", Hours: 1, Mode: "online"})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if got := verr.Fields["student_id"]; got != "student_id must differ from teacher_id" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestValidatePasses(t *testing.T) {
	v := NewValidator()
	if err := v.Validate(bookingRequest{TeacherID: "t", StudentID: "s", Hours: 0.5, Mode: "offline"}); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestToSnake(t *testing.T) {
	cases := map[string]string{
		"TeacherID":     "teacher_id",
		"StudentID":     "student_id",
		"DurationHours": "duration_hours",
		"Mode":          "mode",
	}
	for in, want := range cases {
		if got := toSnake(in); got != want {
			t.Fatalf("toSnake(%q) = %q, want %q", in, got, want)
		}
	}
}

package logger

import (
	"testing"

	"go.uber.org/zap"
)

func TestStringFieldsSkipsEmpty(t *testing.T) {
	t.Parallel()

	fields := StringFields(
		StringField{Key: "job_id", Value: "42"},
		StringField{Key: "  ", Value: "dropped"},
		StringField{Key: "company", Value: "   "},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}
	if fields[0].Key != "job_id" {
		t.Fatalf("unexpected field key: %s", fields[0].Key)
	}
}

func TestJobFields(t *testing.T) {
	t.Parallel()

	fields := JobFields("7", "Acme")
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if fields[0].Key != FieldJobID || fields[1].Key != FieldCompany {
		t.Fatalf("unexpected keys: %s, %s", fields[0].Key, fields[1].Key)
	}
}

func TestWithFieldsNilLogger(t *testing.T) {
	t.Parallel()

	logger := WithFields(nil, zap.String("k", "v"))
	if logger == nil {
		t.Fatalf("expected a usable logger")
	}
}

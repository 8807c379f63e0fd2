package model

import (
	"strings"
	"testing"

	"github.com/streamkit/http-source/internal/domain/pipeline"
)

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	got := strings.Join(reg.Names(), ",")
	if got != "car,person" {
		t.Errorf("Names() = %q, want %q", got, "car,person")
	}
}

func TestPersonType_Constraints(t *testing.T) {
	t.Parallel()

	typ := PersonType()
	v, err := typ.Mapper().Map([]byte(`{"firstname":"jan","lastname":"kowalski","age":10,"address":{"city":""}}`))
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	c, err := typ.Checker()
	if err != nil {
		t.Fatalf("Checker() error = %v", err)
	}
	issues, err := c.Check(v)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	msg := pipeline.JoinIssues(issues)
	if !strings.Contains(msg, "age") || !strings.Contains(msg, "address") {
		t.Errorf("issues = %q, want age and address", msg)
	}
}

func TestCarType_RejectsPerson(t *testing.T) {
	t.Parallel()

	_, err := CarType().Mapper().Map([]byte(`{"firstname":"jan","lastname":"kowalski"}`))
	pe, ok := pipeline.AsError(err)
	if !ok || pe.Kind != pipeline.KindMalformedPayload {
		t.Fatalf("Map() error = %v, want MalformedPayload", err)
	}
	if !strings.Contains(pe.Error(), "firstname") {
		t.Errorf("Error() = %q, want mention of firstname", pe.Error())
	}
}

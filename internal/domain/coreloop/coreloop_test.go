package coreloop_test

import (
	"testing"

	"github.com/corelearn/ale/internal/domain/coreloop"
)

func TestNew(t *testing.T) {
	cl := coreloop.New("cl-1", "Karnaugh Map Minimization", coreloop.TypeMinimization, "topic-1", "verilog")

	if cl.ID != "cl-1" {
		t.Errorf("expected id %q, got %q", "cl-1", cl.ID)
	}
	if cl.Name != "Karnaugh Map Minimization" {
		t.Errorf("expected name %q, got %q", "Karnaugh Map Minimization", cl.Name)
	}
	if cl.Type != coreloop.TypeMinimization {
		t.Errorf("expected type %q, got %q", coreloop.TypeMinimization, cl.Type)
	}
	if cl.TopicID != "topic-1" {
		t.Errorf("expected topic id %q, got %q", "topic-1", cl.TopicID)
	}
	if cl.Language != "verilog" {
		t.Errorf("expected language %q, got %q", "verilog", cl.Language)
	}
}

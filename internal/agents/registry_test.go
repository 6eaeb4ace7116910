package agents

import (
	"testing"

	"github.com/flowentxo/agentinbox/pkg/models"
)

func TestFirstGeneralistBecomesDefault(t *testing.T) {
	registry := NewRegistry()
	registry.Register(models.Agent{ID: "dexter", Name: "Dexter"}, nil)
	registry.Register(models.Agent{ID: "assistant", Name: "Assistant", Generalist: true}, nil)
	registry.Register(models.Agent{ID: "helper", Name: "Helper", Generalist: true}, nil)

	def, ok := registry.Default()
	if !ok || def.Agent.ID != "assistant" {
		t.Fatalf("default = %+v, want assistant", def)
	}
	if !registry.IsDefault("assistant") || registry.IsDefault("helper") || registry.IsDefault("dexter") {
		t.Error("IsDefault mismatch")
	}
}

func TestByNameIsCaseInsensitive(t *testing.T) {
	registry := NewRegistry()
	registry.Register(models.Agent{ID: "dexter", Name: "Dexter"}, nil)

	for _, needle := range []string{"dexter", "DEXTER", "Dexter", " dexter "} {
		caps, ok := registry.ByName(needle)
		if !ok || caps.Agent.ID != "dexter" {
			t.Errorf("ByName(%q) failed", needle)
		}
	}
	if _, ok := registry.ByName("ghost"); ok {
		t.Error("unknown name resolved")
	}
	if _, ok := registry.ByName(""); ok {
		t.Error("empty name resolved")
	}
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	registry := NewRegistry()
	registry.Register(models.Agent{ID: "a"}, nil)
	registry.Register(models.Agent{ID: "b"}, nil)
	registry.Register(models.Agent{ID: "c"}, nil)

	list := registry.List()
	if len(list) != 3 || list[0].ID != "a" || list[1].ID != "b" || list[2].ID != "c" {
		t.Errorf("list = %+v", list)
	}
}

func TestRegisterReplacesExisting(t *testing.T) {
	registry := NewRegistry()
	registry.Register(models.Agent{ID: "a", Name: "old"}, nil)
	registry.Register(models.Agent{ID: "a", Name: "new"}, nil)

	caps, ok := registry.Get("a")
	if !ok || caps.Agent.Name != "new" {
		t.Errorf("replacement failed: %+v", caps)
	}
	if len(registry.List()) != 1 {
		t.Error("duplicate order entry")
	}
}

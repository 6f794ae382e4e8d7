package prompt

import (
	"testing"

	"github.com/vango-go/santa-relay/pkg/core/types"
	"github.com/vango-go/santa-relay/pkg/relay/persona"
)

func TestReconcile_Default(t *testing.T) {
	got := Reconcile(persona.ReconcileDefault, utterances("agent", "Hi", "user", "", "user", "yo"))
	want := []types.Message{
		{Role: types.RoleAssistant, Content: "Hi"},
		{Role: types.RoleUser, Content: ""},
		{Role: types.RoleUser, Content: "yo"},
	}
	assertMessages(t, got, want)
}

func TestReconcile_CoalesceMergesConsecutiveUserTurns(t *testing.T) {
	got := Reconcile(persona.ReconcileCoalesce, utterances("agent", "Hi", "user", "I want", "user", "a puppy", "agent", "Lovely!"))
	want := []types.Message{
		{Role: types.RoleAssistant, Content: "Hi"},
		{Role: types.RoleUser, Content: "I want a puppy"},
		{Role: types.RoleAssistant, Content: "Lovely!"},
	}
	assertMessages(t, got, want)
}

func TestReconcile_CoalesceEmptyUserTurns(t *testing.T) {
	got := Reconcile(persona.ReconcileCoalesce, utterances("user", "  ", "user", "hello", "user", ""))
	assertMessages(t, got, []types.Message{{Role: types.RoleUser, Content: "... hello ..."}})

	got = Reconcile(persona.ReconcileCoalesce, utterances("agent", "Hi", "user", ""))
	assertMessages(t, got, []types.Message{
		{Role: types.RoleAssistant, Content: "Hi"},
		{Role: types.RoleUser, Content: "..."},
	})
}

func TestReconcile_Empty(t *testing.T) {
	if got := Reconcile(persona.ReconcileCoalesce, nil); len(got) != 0 {
		t.Fatalf("Reconcile(nil) = %+v", got)
	}
}

func assertMessages(t *testing.T, got, want []types.Message) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("messages = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("messages[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

package prompt

import (
	"strings"

	"github.com/vango-go/santa-relay/pkg/core/types"
	"github.com/vango-go/santa-relay/pkg/relay/persona"
	"github.com/vango-go/santa-relay/pkg/relay/protocol"
)

// silence stands in for a user turn the platform transcribed as empty.
const silence = "..."

// Reconcile converts a platform transcript snapshot into chat messages.
// Utterances with any role other than agent are treated as user speech.
func Reconcile(policy persona.ReconcilePolicy, transcript []protocol.Utterance) []types.Message {
	return reconcileOnto(nil, policy, transcript)
}

func reconcileOnto(msgs []types.Message, policy persona.ReconcilePolicy, transcript []protocol.Utterance) []types.Message {
	for _, u := range transcript {
		if u.Role == protocol.RoleAgent {
			msgs = append(msgs, types.Message{Role: types.RoleAssistant, Content: u.Content})
			continue
		}
		if policy != persona.ReconcileCoalesce {
			msgs = append(msgs, types.Message{Role: types.RoleUser, Content: u.Content})
			continue
		}

		text := u.Content
		if strings.TrimSpace(text) == "" {
			text = silence
		}
		if n := len(msgs); n > 0 && msgs[n-1].Role == types.RoleUser {
			msgs[n-1].Content += " " + text
			continue
		}
		msgs = append(msgs, types.Message{Role: types.RoleUser, Content: text})
	}
	return msgs
}

// containsAgentLine reports whether transcript already carries line as an
// agent utterance, ignoring whitespace differences.
func containsAgentLine(transcript []protocol.Utterance, line string) bool {
	want := normalize(line)
	if want == "" {
		return true
	}
	for _, u := range transcript {
		if u.Role == protocol.RoleAgent && normalize(u.Content) == want {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package persona

import (
	"strings"

	"github.com/vango-go/santa-relay/pkg/relay/protocol"
)

type templateData struct {
	protocol.Metadata
	ChildrenGreeting string
	Today            string
}

func newTemplateData(md *protocol.Metadata) templateData {
	d := templateData{}
	if md != nil {
		d.Metadata = *md
		d.ChildrenGreeting = JoinNames(md.ChildNames())
	}
	return d
}

// JoinNames joins names the way they are spoken: "A", "A and B",
// "A, B, and C".
func JoinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
}

var defaultContextTemplates = map[Personalization]string{
	PersonalizationNone: "",
	PersonalizationSingle: `You're speaking with {{with .ChildName}}{{.}}{{else}}a child{{end}},
Who is {{.ChildAge}} years old,
Their hobbies include: {{.Hobbies}}.
Additional details: {{.AdditionalInfo}}.
Child Connections: {{.FamilyInfo}}.`,
	PersonalizationMulti: `You're speaking with multiple children:
{{range .Children}}
{{.Name}} is {{.Age}} years old and {{.Gender}}.
Their hobbies include: {{.Hobbies}}.
Additional details: {{.Details}}.
Child Connections: {{.Connections}}.
parent Name: {{$.ParentName}}.
{{end}}
Remember to engage with each child individually while maintaining group conversation flow.`,
}

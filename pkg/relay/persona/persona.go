// Package persona holds the immutable Santa persona definitions: the system
// prompt, greetings, reminder nudge, tool set and transcript policy used for
// a call.
package persona

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-go/santa-relay/pkg/core/types"
	"github.com/vango-go/santa-relay/pkg/relay/protocol"
)

//go:embed catalog/*.yaml
var catalogFS embed.FS

// DefaultName is the persona used when none is configured.
const DefaultName = "classic"

// ReconcilePolicy selects how the platform transcript becomes chat messages.
type ReconcilePolicy string

const (
	// ReconcileDefault maps each utterance to one message.
	ReconcileDefault ReconcilePolicy = "default"
	// ReconcileCoalesce merges consecutive user utterances and replaces
	// empty user turns with "...".
	ReconcileCoalesce ReconcilePolicy = "coalesce"
)

// Personalization selects which metadata fields shape the prompt and greeting.
type Personalization string

const (
	PersonalizationNone   Personalization = "none"
	PersonalizationSingle Personalization = "single"
	PersonalizationMulti  Personalization = "multi"
)

// ToolKind is the behavior bound to a tool name.
type ToolKind string

const (
	// ToolEndCall speaks the tool's message and ends the call.
	ToolEndCall ToolKind = "end_call"
	// ToolSpeak speaks the tool's message and keeps the call open.
	ToolSpeak ToolKind = "speak"
)

type Tool struct {
	Name        string         `yaml:"name"`
	Kind        ToolKind       `yaml:"kind"`
	Description string         `yaml:"description"`
	Parameters  map[string]any `yaml:"parameters"`
}

// Persona is read-only once loaded and safe for concurrent use.
type Persona struct {
	Name             string          `yaml:"name"`
	Description      string          `yaml:"description"`
	Model            string          `yaml:"model"`
	Temperature      *float64        `yaml:"temperature"`
	MaxTokens        int             `yaml:"max_tokens"`
	Reconcile        ReconcilePolicy `yaml:"reconcile"`
	Personalization  Personalization `yaml:"personalization"`
	SystemPrompt     string          `yaml:"system_prompt"`
	ContextTemplate  string          `yaml:"context_template"`
	Greetings        []string        `yaml:"greetings"`
	FallbackGreeting string          `yaml:"fallback_greeting"`
	Reminder         string          `yaml:"reminder"`
	LeadIn           string          `yaml:"lead_in"`
	Tools            []Tool          `yaml:"tools"`

	system    *template.Template
	context   *template.Template
	greetings []*template.Template
	tools     []types.Tool
}

// Names lists the embedded catalog.
func Names() []string {
	entries, err := catalogFS.ReadDir("catalog")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	sort.Strings(names)
	return names
}

// Load returns the embedded persona called name.
func Load(name string) (*Persona, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	data, err := catalogFS.ReadFile("catalog/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown persona %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return Parse(data)
}

// ParseFile loads a persona from a YAML file on disk.
func ParseFile(filename string) (*Persona, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML persona.
func Parse(data []byte) (*Persona, error) {
	var p Persona
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode persona: %w", err)
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Persona) compile() error {
	p.Name = strings.TrimSpace(p.Name)
	p.SystemPrompt = strings.TrimSpace(p.SystemPrompt)
	p.FallbackGreeting = strings.TrimSpace(p.FallbackGreeting)
	p.Reminder = strings.TrimSpace(p.Reminder)
	p.LeadIn = strings.TrimSpace(p.LeadIn)

	var errs []error
	if p.Name == "" {
		errs = append(errs, errors.New("persona name is required"))
	}
	if p.SystemPrompt == "" {
		errs = append(errs, errors.New("system_prompt is required"))
	}
	if p.FallbackGreeting == "" {
		errs = append(errs, errors.New("fallback_greeting is required"))
	}
	if p.Reminder == "" {
		errs = append(errs, errors.New("reminder is required"))
	}
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		errs = append(errs, errors.New("temperature must be within [0,2]"))
	}
	if p.MaxTokens < 0 {
		errs = append(errs, errors.New("max_tokens must be >= 0"))
	}
	switch p.Reconcile {
	case "":
		p.Reconcile = ReconcileDefault
	case ReconcileDefault, ReconcileCoalesce:
	default:
		errs = append(errs, fmt.Errorf("reconcile must be %q or %q", ReconcileDefault, ReconcileCoalesce))
	}
	switch p.Personalization {
	case "":
		p.Personalization = PersonalizationNone
	case PersonalizationNone, PersonalizationSingle, PersonalizationMulti:
	default:
		errs = append(errs, fmt.Errorf("personalization must be one of none, single, multi"))
	}

	seen := make(map[string]bool, len(p.Tools))
	for i, t := range p.Tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("tools[%d].name is required", i))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("tools[%d].name %q is duplicated", i, name))
		}
		seen[name] = true
		if t.Kind != ToolEndCall && t.Kind != ToolSpeak {
			errs = append(errs, fmt.Errorf("tools[%d].kind must be %q or %q", i, ToolEndCall, ToolSpeak))
		}
		schema, err := json.Marshal(t.Parameters)
		if err != nil {
			errs = append(errs, fmt.Errorf("tools[%d].parameters: %w", i, err))
			continue
		}
		if t.Parameters == nil {
			schema = nil
		}
		p.tools = append(p.tools, types.Tool{Name: name, Description: strings.TrimSpace(t.Description), Parameters: schema})
	}

	var err error
	if p.system, err = template.New("system").Option("missingkey=zero").Parse(p.SystemPrompt); err != nil {
		errs = append(errs, fmt.Errorf("system_prompt: %w", err))
	}
	ctxText := p.ContextTemplate
	if strings.TrimSpace(ctxText) == "" {
		ctxText = defaultContextTemplates[p.Personalization]
	}
	if p.context, err = template.New("context").Parse(ctxText); err != nil {
		errs = append(errs, fmt.Errorf("context_template: %w", err))
	}
	for i, g := range p.Greetings {
		t, err := template.New(fmt.Sprintf("greeting%d", i)).Parse(strings.TrimSpace(g))
		if err != nil {
			errs = append(errs, fmt.Errorf("greetings[%d]: %w", i, err))
			continue
		}
		p.greetings = append(p.greetings, t)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid persona %q: %w", p.Name, errors.Join(errs...))
	}
	return nil
}

// ModelTools returns the tool definitions advertised to the model.
func (p *Persona) ModelTools() []types.Tool {
	return p.tools
}

// Tool resolves a tool by name.
func (p *Persona) Tool(name string) (Tool, bool) {
	for _, t := range p.Tools {
		if strings.TrimSpace(t.Name) == name {
			return t, true
		}
	}
	return Tool{}, false
}

// SystemText renders the persona's system prompt for the given day.
func (p *Persona) SystemText(now time.Time) string {
	var b strings.Builder
	if err := p.system.Execute(&b, templateData{Today: now.Format("Monday, January 02, 2006")}); err != nil {
		return p.SystemPrompt
	}
	return strings.TrimSpace(b.String())
}

// Context renders the personalization block. It is empty without metadata.
func (p *Persona) Context(md *protocol.Metadata) string {
	if md == nil || p.Personalization == PersonalizationNone {
		return ""
	}
	if p.Personalization == PersonalizationMulti && len(md.Children) == 0 {
		return ""
	}
	var b strings.Builder
	if err := p.context.Execute(&b, newTemplateData(md)); err != nil {
		return ""
	}
	return strings.TrimSpace(b.String())
}

// Opening renders the opening line of the call. pick chooses a greeting
// index in [0,n); nil picks the first.
//
// Personas that personalize fall back to FallbackGreeting when the metadata
// is missing or carries no name to greet.
func (p *Persona) Opening(md *protocol.Metadata, pick func(n int) int) string {
	if len(p.greetings) == 0 {
		return p.FallbackGreeting
	}
	switch p.Personalization {
	case PersonalizationSingle:
		if md == nil || md.ChildName == "" {
			return p.FallbackGreeting
		}
	case PersonalizationMulti:
		if md == nil || len(md.ChildNames()) == 0 {
			return p.FallbackGreeting
		}
	}

	i := 0
	if pick != nil && len(p.greetings) > 1 {
		i = pick(len(p.greetings))
		if i < 0 || i >= len(p.greetings) {
			i = 0
		}
	}
	var b strings.Builder
	if err := p.greetings[i].Execute(&b, newTemplateData(md)); err != nil {
		return p.FallbackGreeting
	}
	return strings.TrimSpace(b.String())
}

// WithModel returns a copy of p that targets model ("provider/model").
func (p *Persona) WithModel(model string) *Persona {
	cp := *p
	cp.Model = model
	return &cp
}

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Dynamic variable keys understood by the personas.
const (
	VarChildName        = "contact_child_name"
	VarChildAge         = "contact_child_age"
	VarHobbies          = "contact_hobbies"
	VarAdditionalInfo   = "contact_additional_information"
	VarFamilyInfo       = "contact_family_info"
	VarContactRecording = "contact_recording"
	VarChildren         = "children"
	VarParentName       = "parentName"
)

// DynamicVariables is the platform's per-call string map. Non-string scalar
// values are kept in their JSON text form.
type DynamicVariables map[string]string

func (d *DynamicVariables) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = nil
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(DynamicVariables, len(raw))
	for k, v := range raw {
		out[k] = scalarString(v)
	}
	*d = out
	return nil
}

// FlexString accepts a JSON string, number or bool.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	*f = FlexString(scalarString(data))
	return nil
}

func scalarString(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return ""
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
	}
	return string(v)
}

// Child is one entry of the "children" dynamic variable.
type Child struct {
	Name        FlexString `json:"childName"`
	Age         FlexString `json:"childAge"`
	Gender      FlexString `json:"childGender"`
	Hobbies     FlexString `json:"hobbies"`
	Details     FlexString `json:"details"`
	Connections FlexString `json:"connections"`
}

// Metadata is the typed view of a call's dynamic variables. It is set once
// per call and read-only afterwards.
type Metadata struct {
	ChildName        string
	ChildAge         string
	Hobbies          string
	AdditionalInfo   string
	FamilyInfo       string
	ParentName       string
	ContactRecording bool
	Children         []Child
	Raw              map[string]string
}

// ParseMetadata builds Metadata from dynamic variables. It returns nil when
// vars is empty. A malformed "children" value leaves Children empty and is
// reported as an error alongside the otherwise usable Metadata.
func ParseMetadata(vars map[string]string) (*Metadata, error) {
	if len(vars) == 0 {
		return nil, nil
	}
	raw := make(map[string]string, len(vars))
	for k, v := range vars {
		raw[k] = v
	}
	md := &Metadata{
		ChildName:        strings.TrimSpace(vars[VarChildName]),
		ChildAge:         strings.TrimSpace(vars[VarChildAge]),
		Hobbies:          strings.TrimSpace(vars[VarHobbies]),
		AdditionalInfo:   strings.TrimSpace(vars[VarAdditionalInfo]),
		FamilyInfo:       strings.TrimSpace(vars[VarFamilyInfo]),
		ParentName:       strings.TrimSpace(vars[VarParentName]),
		ContactRecording: RecordingConsent(vars),
		Raw:              raw,
	}
	if children := strings.TrimSpace(vars[VarChildren]); children != "" {
		if err := json.Unmarshal([]byte(children), &md.Children); err != nil {
			md.Children = nil
			return md, fmt.Errorf("decode %s: %w", VarChildren, err)
		}
	}
	return md, nil
}

// RecordingConsent reports whether contact_recording is exactly "true".
func RecordingConsent(vars map[string]string) bool {
	return vars[VarContactRecording] == "true"
}

// ChildNames returns the non-empty names from Children, in order.
func (m *Metadata) ChildNames() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.Children))
	for _, c := range m.Children {
		if n := strings.TrimSpace(string(c.Name)); n != "" {
			names = append(names, n)
		}
	}
	return names
}

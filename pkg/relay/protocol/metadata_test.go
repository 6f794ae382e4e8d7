package protocol

import "testing"

func TestParseMetadata_Empty(t *testing.T) {
	md, err := ParseMetadata(nil)
	if md != nil || err != nil {
		t.Fatalf("ParseMetadata(nil) = %v, %v", md, err)
	}
}

func TestParseMetadata_SingleChild(t *testing.T) {
	md, err := ParseMetadata(map[string]string{
		VarChildName:        " Ethan ",
		VarChildAge:         "7",
		VarHobbies:          "hockey",
		VarContactRecording: "true",
	})
	if err != nil {
		t.Fatalf("ParseMetadata error: %v", err)
	}
	if md.ChildName != "Ethan" || md.ChildAge != "7" || md.Hobbies != "hockey" || !md.ContactRecording {
		t.Fatalf("md = %+v", md)
	}
	if md.Raw[VarChildName] != " Ethan " {
		t.Fatalf("raw should keep original values: %q", md.Raw[VarChildName])
	}
}

func TestParseMetadata_Children(t *testing.T) {
	md, err := ParseMetadata(map[string]string{
		VarChildren:   `[{"childName":"Ava","childAge":5,"childGender":"girl"},{"childName":"Leo","childAge":"8"}]`,
		VarParentName: "Sam",
	})
	if err != nil {
		t.Fatalf("ParseMetadata error: %v", err)
	}
	names := md.ChildNames()
	if len(names) != 2 || names[0] != "Ava" || names[1] != "Leo" {
		t.Fatalf("names = %v", names)
	}
	if md.Children[0].Age != "5" || md.ParentName != "Sam" {
		t.Fatalf("md = %+v", md)
	}
}

func TestParseMetadata_MalformedChildrenStillUsable(t *testing.T) {
	md, err := ParseMetadata(map[string]string{VarChildren: "not json", VarChildName: "Mia"})
	if err == nil {
		t.Fatalf("expected error for malformed children")
	}
	if md == nil || md.ChildName != "Mia" || len(md.Children) != 0 {
		t.Fatalf("md = %+v", md)
	}
}

func TestRecordingConsent(t *testing.T) {
	cases := map[string]bool{"true": true, "TRUE": false, "1": false, "": false, "false": false}
	for v, want := range cases {
		if got := RecordingConsent(map[string]string{VarContactRecording: v}); got != want {
			t.Fatalf("RecordingConsent(%q) = %v, want %v", v, got, want)
		}
	}
	if RecordingConsent(nil) {
		t.Fatalf("RecordingConsent(nil) should be false")
	}
}

package hxreload

import (
	"errors"
	"testing"
)

func TestCaptureState(t *testing.T) {
	p, _ := ParsePage("http://example.com/", `<body>
<div id="a" class="block expanded"></div>
<div id="b" data-expanded="true"></div>
<div id="c" data-expanded="false"></div>
</body>`)

	tests := []struct {
		selector string
		want     bool
	}{
		{"#a", true},
		{"#b", true},
		{"#c", false},
		{"#missing", false},
	}
	for _, tt := range tests {
		st, err := CaptureState(p, tt.selector, DefaultCarry)
		if err != nil {
			t.Fatalf("CaptureState(%s): %v", tt.selector, err)
		}
		if st.Toggled != tt.want {
			t.Errorf("CaptureState(%s).Toggled = %v, want %v", tt.selector, st.Toggled, tt.want)
		}
	}
	if _, err := CaptureState(p, "[", DefaultCarry); !errors.Is(err, ErrInvalidSelector) {
		t.Errorf("bad selector error = %v", err)
	}
}

func TestToggleStateQuery(t *testing.T) {
	on := ToggleState{Selector: "#a", Marker: "open", Toggled: true}
	q := on.Query(nil)
	if q["open"] != "1" {
		t.Errorf("query = %v", q)
	}

	off := ToggleState{Selector: "#a", Marker: "open"}
	if q := off.Query(map[string]string{"x": "y"}); len(q) != 1 {
		t.Errorf("untoggled state should add nothing, got %v", q)
	}
}

func TestRestoreState(t *testing.T) {
	p, _ := ParsePage("http://example.com/", `<body><div id="a" class="block"></div><div id="b" class="expanded" data-expanded="true"></div></body>`)

	if err := RestoreState(p, ToggleState{Selector: "#a", Marker: DefaultCarry, Toggled: true}); err != nil {
		t.Fatal(err)
	}
	if on, _ := p.HasClass("#a", DefaultCarry); !on {
		t.Error("#a should be expanded")
	}

	if err := RestoreState(p, ToggleState{Selector: "#b", Marker: DefaultCarry}); err != nil {
		t.Fatal(err)
	}
	if on, _ := p.HasClass("#b", DefaultCarry); on {
		t.Error("#b should be collapsed")
	}
	if v, _, _ := p.Attr("#b", "data-expanded"); v != "false" {
		t.Errorf("data-expanded = %q, want false", v)
	}

	err := RestoreState(p, ToggleState{Selector: "#gone", Marker: DefaultCarry, Toggled: true})
	if !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("error = %v, want ErrTargetNotFound", err)
	}
}

func TestStateToken(t *testing.T) {
	enc, err := NewEncoder([]byte("state-key"))
	if err != nil {
		t.Fatal(err)
	}
	in := []ToggleState{
		{Selector: "#a", Marker: "expanded", Toggled: true},
		{Selector: "#b", Marker: "open"},
	}
	token, err := EncodeState(enc, in...)
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeStateToken(enc, token)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Errorf("round trip = %+v", out)
	}

	other, _ := NewEncoder([]byte("other-key"))
	if _, err := DecodeStateToken(other, token); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("foreign key error = %v", err)
	}
	if _, err := DecodeStateToken(enc, "garbage"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("garbage error = %v", err)
	}
}

func TestEncryptedStateToken(t *testing.T) {
	enc, err := NewEncoder([]byte("state-key"))
	if err != nil {
		t.Fatal(err)
	}
	in := ToggleState{Selector: "#a", Marker: "expanded", Toggled: true}
	token, err := EncryptState(enc, in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeStateToken(enc, token)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0] != in {
		t.Errorf("round trip = %+v", out)
	}

	other, _ := NewEncoder([]byte("other-key"))
	if _, err := DecodeStateToken(other, token); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("foreign key error = %v, want ErrDecryptFailed", err)
	}
}

package target

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    Target
		wantErr bool
	}{
		{name: "bare host", spec: "web1", want: Target{Host: "web1", Port: 22}},
		{name: "host with port", spec: "web1:2222", want: Target{Host: "web1", Port: 2222}},
		{name: "ipv4", spec: "10.0.0.5", want: Target{Host: "10.0.0.5", Port: 22}},
		{name: "ipv4 with port", spec: "10.0.0.5:2022", want: Target{Host: "10.0.0.5", Port: 2022}},
		{name: "ipv6 bracketed", spec: "[::1]", want: Target{Host: "::1", Port: 22}},
		{name: "ipv6 bracketed with port", spec: "[::1]:2222", want: Target{Host: "::1", Port: 2222}},
		{name: "bare ipv6", spec: "fe80::1", want: Target{Host: "fe80::1", Port: 22}},
		{name: "surrounding whitespace", spec: "  web1  ", want: Target{Host: "web1", Port: 22}},
		{name: "inline comment", spec: "web1:2222 # primary", want: Target{Host: "web1", Port: 2222}},
		{name: "empty", spec: "", wantErr: true},
		{name: "only whitespace", spec: "   ", wantErr: true},
		{name: "bad port", spec: "web1:abc", wantErr: true},
		{name: "port zero", spec: "web1:0", wantErr: true},
		{name: "port too high", spec: "web1:70000", wantErr: true},
		{name: "unclosed ipv6 bracket", spec: "[::1", wantErr: true},
		{name: "empty host with port", spec: ":22", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %+v, want error", tt.spec, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.spec, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.spec, got, tt.want)
			}
		})
	}
}

func TestParseList(t *testing.T) {
	got, err := ParseList("a, b:2222, ,c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Target{
		{Host: "a", Port: 22},
		{Host: "b", Port: 2222},
		{Host: "c", Port: 22},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseList = %+v, want %+v", got, want)
	}

	if _, err := ParseList("a,bad:port"); err == nil {
		t.Error("expected error for invalid entry")
	}
}

func TestDedupe(t *testing.T) {
	in := []Target{
		{Host: "a", Port: 22},
		{Host: "a", Port: 22},
		{Host: "b", Port: 22},
		{Host: "a", Port: 2222},
		{Host: "b", Port: 22},
	}
	got := Dedupe(in)
	want := []Target{
		{Host: "a", Port: 22},
		{Host: "b", Port: 22},
		{Host: "a", Port: 2222},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dedupe = %+v, want %+v", got, want)
	}
}

func TestStringElidesDefaultPort(t *testing.T) {
	if s := (Target{Host: "web1", Port: 22}).String(); s != "web1" {
		t.Errorf("String() = %q, want %q", s, "web1")
	}
	if s := (Target{Host: "web1", Port: 2222}).String(); s != "web1:2222" {
		t.Errorf("String() = %q, want %q", s, "web1:2222")
	}
}

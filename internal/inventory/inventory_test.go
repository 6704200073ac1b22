package inventory

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Crusty-rs/crusty/internal/errors"
	"github.com/Crusty-rs/crusty/internal/target"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseLines(t *testing.T) {
	input := `
# fleet inventory
web1
web2:2222   # staging
  db1:5022
   # full comment line

web1
`
	got, err := parseLines(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []target.Target{
		{Host: "web1", Port: 22},
		{Host: "web2", Port: 2222},
		{Host: "db1", Port: 5022},
		{Host: "web1", Port: 22}, // dedupe happens in Resolve, not here
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseLines = %+v, want %+v", got, want)
	}
}

func TestParseLinesInvalidEntry(t *testing.T) {
	if _, err := parseLines(strings.NewReader("web1:notaport\n")); err == nil {
		t.Error("expected error for invalid port")
	}
}

func TestResolveDedupesFirstSeen(t *testing.T) {
	path := writeFile(t, "hosts.txt", "a\nb\n")
	got, err := Resolve("a, a, b", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []target.Target{
		{Host: "a", Port: 22},
		{Host: "b", Port: 22},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %+v, want %+v", got, want)
	}
}

func TestResolveEmptyIsInventoryError(t *testing.T) {
	_, err := Resolve("", "")
	if err == nil {
		t.Fatal("expected error for empty inventory")
	}
	if kind := errors.KindOf(err); kind != errors.KindInventory {
		t.Errorf("error kind = %v, want inventory", kind)
	}
}

func TestResolveUnreadableFile(t *testing.T) {
	_, err := Resolve("", filepath.Join(t.TempDir(), "missing.txt"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if kind := errors.KindOf(err); kind != errors.KindInventory {
		t.Errorf("error kind = %v, want inventory", kind)
	}
}

func TestLoadAnsibleYAML(t *testing.T) {
	path := writeFile(t, "inv.yml", `
all:
  hosts:
    bastion:
      ansible_host: 203.0.113.7
      ansible_port: 2222
webservers:
  hosts:
    web1: {}
    web2:
      ansible_host: 10.0.0.2
databases:
  children:
    primary:
      hosts:
        db1:
          ansible_port: 5022
`)
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []target.Target{
		{Host: "203.0.113.7", Port: 2222},
		{Host: "db1", Port: 5022},
		{Host: "web1", Port: 22},
		{Host: "10.0.0.2", Port: 22},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadFile = %+v, want %+v", got, want)
	}
}

func TestLoadAnsibleInvalid(t *testing.T) {
	path := writeFile(t, "inv.yml", "::: not yaml :::")
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

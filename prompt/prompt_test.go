package prompt

import (
	"bytes"
	"strings"
	"testing"
)

func TestChoose(t *testing.T) {
	var out bytes.Buffer
	choose := New(strings.NewReader("2\n"), &out)

	n, err := choose([]string{"virtualbox", "vmware"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("choice = %d, want 2", n)
	}
	if !strings.Contains(out.String(), "1) virtualbox") || !strings.Contains(out.String(), "2) vmware") {
		t.Errorf("prompt output missing candidates:\n%s", out.String())
	}
}

func TestChooseDefault(t *testing.T) {
	choose := New(strings.NewReader("\n"), &bytes.Buffer{})

	n, err := choose([]string{"virtualbox", "vmware"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("choice = %d, want default 1", n)
	}
}

func TestChooseRetriesInvalidInput(t *testing.T) {
	var out bytes.Buffer
	choose := New(strings.NewReader("nine\n7\n2\n"), &out)

	n, err := choose([]string{"virtualbox", "vmware"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("choice = %d, want 2", n)
	}
	if !strings.Contains(out.String(), "between 1 and 2") {
		t.Errorf("no retry message in:\n%s", out.String())
	}
}

func TestChooseInputExhausted(t *testing.T) {
	choose := New(strings.NewReader("bogus"), &bytes.Buffer{})

	if _, err := choose([]string{"virtualbox", "vmware"}, 1); err == nil {
		t.Fatal("expected error when input runs out")
	}
}

package format

import (
	"bytes"
	"strings"
	"testing"
)

type payload struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (p payload) Text() string { return p.ID + "  " + p.Title }

func TestWrite_Formats(t *testing.T) {
	p := payload{ID: "n1", Title: "Hello"}

	var buf bytes.Buffer
	if err := Write(&buf, p, "", false); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != `{"id":"n1","title":"Hello"}`+"\n" {
		t.Fatalf("json = %q", got)
	}

	buf.Reset()
	if err := Write(&buf, p, "yaml", false); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); !strings.Contains(got, "id: n1\n") || !strings.Contains(got, "title: Hello\n") {
		t.Fatalf("yaml = %q", got)
	}

	buf.Reset()
	if err := Write(&buf, p, "text", false); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "n1  Hello\n" {
		t.Fatalf("text = %q", got)
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, 1, "edn", false); err == nil {
		t.Fatalf("expected error")
	}
}

package notefmt

import (
	"errors"
	"strings"
	"testing"
)

func TestEncode_Layout(t *testing.T) {
	data, err := Encode(Header{
		Title:   "Task A",
		ID:      "1",
		Author:  "Ada",
		Created: "1700000000000",
		Status:  "open",
		Order:   2,
	}, "root content")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := "---\n" +
		"title: Task A\n" +
		"id: \"1\"\n" +
		"parent_id: \"\"\n" +
		"author: Ada\n" +
		"created: \"1700000000000\"\n" +
		"status: open\n" +
		"order: 2\n" +
		"source: com.clickup\n" +
		"source_application: clickup-notes\n" +
		"---\n" +
		"\n" +
		"root content"
	if string(data) != want {
		t.Errorf("encoded =\n%s\nwant\n%s", data, want)
	}
}

func TestRoundTrip_MetadataByteForByte(t *testing.T) {
	cases := []Header{
		{Title: "Plain", ID: "a1", Author: "Ada Lovelace", Created: "1700000000000"},
		{Title: "Colon: and # hash", ID: "a2", Author: "", Created: "not a date"},
		{Title: "---", ID: "a3", Author: "O'Brien", Created: "2023-01-02"},
		{Title: "  padded  ", ID: "007", Author: "yes", Created: "1.7e12"},
		{Title: "Ünïcødé ✓", ID: "x", Author: "null", Created: ""},
	}
	for _, h := range cases {
		data, err := Encode(h, "body\nline two\n")
		if err != nil {
			t.Fatalf("Encode(%q): %v", h.Title, err)
		}
		n, err := Parse(data)
		if err != nil {
			t.Fatalf("Parse(%q): %v", h.Title, err)
		}
		if n.Header.Title != h.Title {
			t.Errorf("title = %q, want %q", n.Header.Title, h.Title)
		}
		if n.Header.Author != h.Author {
			t.Errorf("author = %q, want %q", n.Header.Author, h.Author)
		}
		if n.Header.Created != h.Created {
			t.Errorf("created = %q, want %q", n.Header.Created, h.Created)
		}
		if n.Header.ID != h.ID {
			t.Errorf("id = %q, want %q", n.Header.ID, h.ID)
		}
		if n.Body != "body\nline two\n" {
			t.Errorf("body = %q", n.Body)
		}
	}
}

func TestRoundTrip_BodyWithLeadingNewlineAndFence(t *testing.T) {
	body := "\nfirst\n---\nafter fence"
	data, err := Encode(Header{Title: "t", ID: "1", Tags: []string{"a", "b"}}, body)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	n, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Body != body {
		t.Errorf("body = %q, want %q", n.Body, body)
	}
	if len(n.Header.Tags) != 2 || n.Header.Tags[1] != "b" {
		t.Errorf("tags = %v", n.Header.Tags)
	}
}

func TestParse_MissingHeader(t *testing.T) {
	_, err := Parse([]byte("# Just a heading\nSome text.\n"))
	if !errors.Is(err, ErrMissingHeader) {
		t.Fatalf("err = %v, want ErrMissingHeader", err)
	}
}

func TestParse_NoClosingFence(t *testing.T) {
	_, err := Parse([]byte("---\ntitle: x\nbody"))
	if !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("err = %v, want ErrMalformedHeader", err)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("---\n: invalid: yaml: {{{\n---\n\nBody\n"))
	if !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("err = %v, want ErrMalformedHeader", err)
	}
}

func TestParse_CRLF(t *testing.T) {
	n, err := Parse([]byte("---\r\ntitle: Win\r\norder: 3\r\n---\r\n\r\nbody"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Header.Title != "Win" || n.Header.Order != 3 {
		t.Errorf("header = %+v", n.Header)
	}
	if !strings.HasPrefix(n.Body, "body") {
		t.Errorf("body = %q", n.Body)
	}
}

func TestEncode_KindFollowsOrder(t *testing.T) {
	data, err := Encode(Header{Title: "Work", ID: "space:Work", Order: 1, Kind: "container"}, "")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), "order: 1\nkind: container\nsource: com.clickup\n") {
		t.Errorf("encoded =\n%s", data)
	}
	n, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Header.Kind != "container" || n.Body != "" {
		t.Errorf("parsed = %+v", n)
	}
}

package parser

import (
	"reflect"
	"testing"

	"github.com/starford/dagaz/internal/models"
)

func TestExtract_Wikilink(t *testing.T) {
	spans := Extract("Check [[Alpha]] today")
	if len(spans) != 1 {
		t.Fatalf("len(spans) = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Type != models.SpanWikilink || s.Target != "Alpha" {
		t.Errorf("span = %+v", s)
	}
	if s.Start != 6 || s.End != 15 {
		t.Errorf("offsets = [%d,%d), want [6,15)", s.Start, s.End)
	}
}

func TestExtract_Tag(t *testing.T) {
	spans := Extract("fix it #urgent now")
	if len(spans) != 1 {
		t.Fatalf("len(spans) = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Type != models.SpanTag || s.Target != "urgent" {
		t.Errorf("span = %+v", s)
	}
	// Span starts at '#', excluding the leading whitespace.
	if s.Start != 7 || s.End != 14 {
		t.Errorf("offsets = [%d,%d), want [7,14)", s.Start, s.End)
	}
}

func TestExtract_TagAtStart(t *testing.T) {
	spans := Extract("#todo first")
	if len(spans) != 1 || spans[0].Start != 0 || spans[0].Target != "todo" {
		t.Fatalf("spans = %+v", spans)
	}
}

func TestExtract_TagMidWordIgnored(t *testing.T) {
	if spans := Extract("issue#42"); len(spans) != 0 {
		t.Errorf("mid-word # should not produce a tag, got %+v", spans)
	}
}

func TestExtract_URL(t *testing.T) {
	spans := Extract("see https://example.com/a?b=1 for details")
	if len(spans) != 1 {
		t.Fatalf("len(spans) = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Type != models.SpanURL || s.Target != "https://example.com/a?b=1" {
		t.Errorf("span = %+v", s)
	}
	if s.Start != 4 || s.End != 29 {
		t.Errorf("offsets = [%d,%d)", s.Start, s.End)
	}
}

func TestExtract_MixedOrdering(t *testing.T) {
	spans := Extract("Check [[Alpha]] #urgent http://x.io")
	if len(spans) != 3 {
		t.Fatalf("len(spans) = %d, want 3", len(spans))
	}
	want := []string{models.SpanWikilink, models.SpanTag, models.SpanURL}
	for i, s := range spans {
		if s.Type != want[i] {
			t.Errorf("spans[%d].Type = %q, want %q", i, s.Type, want[i])
		}
	}
	for i := 1; i < len(spans); i++ {
		if spans[i].Start < spans[i-1].Start {
			t.Errorf("spans out of scan order: %+v", spans)
		}
	}
}

func TestExtract_UnbalancedWikilink(t *testing.T) {
	if spans := Extract("oops [[NoClose and more"); len(spans) != 0 {
		t.Errorf("unbalanced [[ should yield no spans, got %+v", spans)
	}
}

func TestExtract_Empty(t *testing.T) {
	if spans := Extract(""); len(spans) != 0 {
		t.Errorf("empty text should yield no spans, got %+v", spans)
	}
}

func TestExtract_OverlappingIndependent(t *testing.T) {
	// URL inside a wikilink target: both reported, no merge.
	spans := Extract("[[https://example.com]]")
	var kinds []string
	for _, s := range spans {
		kinds = append(kinds, s.Type)
	}
	if !reflect.DeepEqual(kinds, []string{models.SpanWikilink, models.SpanURL}) {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	text := "a [[B]] #c https://d.io [[B]] #c"
	first := Extract(text)
	second := Extract(text)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("extraction not deterministic:\n%+v\n%+v", first, second)
	}
	if len(first) != 5 {
		t.Errorf("len = %d, want 5 (repeats reported independently)", len(first))
	}
}

func TestValid(t *testing.T) {
	text := "hello"
	if !Valid(text, []models.Span{{Start: 0, End: 5}}) {
		t.Error("full-range span should be valid")
	}
	if Valid(text, []models.Span{{Start: 3, End: 9}}) {
		t.Error("span past end should be invalid")
	}
	if Valid(text, []models.Span{{Start: 4, End: 2}}) {
		t.Error("inverted span should be invalid")
	}
}

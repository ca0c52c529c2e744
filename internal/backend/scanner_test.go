package backend

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestSSEScannerReadsDataPayloads(t *testing.T) {
	input := "data: {\"a\":1}\n\n" +
		": keep-alive comment\n" +
		"event: message\n" +
		"data: {\"b\":2}\n\n"

	sc := NewSSEScanner(strings.NewReader(input))

	first, err := sc.Next()
	if err != nil {
		t.Fatalf("first payload: %v", err)
	}
	if first != `{"a":1}` {
		t.Errorf("first payload = %q, want %q", first, `{"a":1}`)
	}

	second, err := sc.Next()
	if err != nil {
		t.Fatalf("second payload: %v", err)
	}
	if second != `{"b":2}` {
		t.Errorf("second payload = %q, want %q", second, `{"b":2}`)
	}

	if _, err := sc.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("after input: err = %v, want io.EOF", err)
	}
}

func TestSSEScannerDoneSentinel(t *testing.T) {
	input := "data: {\"a\":1}\n\ndata: [DONE]\n\ndata: {\"never\":true}\n\n"
	sc := NewSSEScanner(strings.NewReader(input))

	if _, err := sc.Next(); err != nil {
		t.Fatalf("first payload: %v", err)
	}
	if _, err := sc.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("[DONE]: err = %v, want io.EOF", err)
	}
}

func TestSSEScannerJoinsMultiLineData(t *testing.T) {
	input := "data: line one\ndata: line two\n\n"
	sc := NewSSEScanner(strings.NewReader(input))

	payload, err := sc.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if payload != "line one\nline two" {
		t.Errorf("payload = %q, want joined lines", payload)
	}
}

func TestSSEScannerFlushesTrailingDataWithoutBlankLine(t *testing.T) {
	sc := NewSSEScanner(strings.NewReader("data: tail"))

	payload, err := sc.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if payload != "tail" {
		t.Errorf("payload = %q, want %q", payload, "tail")
	}
	if _, err := sc.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("after tail: err = %v, want io.EOF", err)
	}
}

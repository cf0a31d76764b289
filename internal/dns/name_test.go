package dns

import "testing"

func TestEncodeName(t *testing.T) {
	b, err := EncodeName("google.com")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	exp := []byte{6, 'g', 'o', 'o', 'g', 'l', 'e', 3, 'c', 'o', 'm', 0}
	if string(b) != string(exp) {
		t.Fatalf("got %v want %v", b, exp)
	}
}

func TestEncodeNameRejectsEmptyLabel(t *testing.T) {
	if _, err := EncodeName("www..com"); err == nil {
		t.Fatal("expected error for empty label")
	}
}

func TestDecodeNameUncompressed(t *testing.T) {
	msg := []byte{3, 'w', 'w', 'w', 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0}
	off := 0
	n, err := DecodeName(msg, &off)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if n != "www.example.com" {
		t.Fatalf("got %q", n)
	}
	if off != len(msg) {
		t.Fatalf("off=%d", off)
	}
}

func TestDecodeNameCompressed(t *testing.T) {
	// "example.com" at offset 0, then a second name "www" pointing back at
	// offset 0's "example.com" tail.
	msg := []byte{7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0}
	msg = append(msg, 3, 'w', 'w', 'w', 0xC0, 0x00)

	off := len(msg) - 6
	n, err := DecodeName(msg, &off)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if n != "www.example.com" {
		t.Fatalf("got %q", n)
	}
	if off != len(msg) {
		t.Fatalf("off=%d", off)
	}
}

func TestDecodeNameRejectsPointerLoop(t *testing.T) {
	msg := []byte{0xC0, 0x00}
	off := 0
	if _, err := DecodeName(msg, &off); err == nil {
		t.Fatal("expected error for self-referencing compression pointer")
	}
}

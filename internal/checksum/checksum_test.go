package checksum

import "testing"

func TestSum(t *testing.T) {
	got := Sum([]byte("hello"))
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("Sum = %q, want %q", got, want)
	}
}

func TestShort(t *testing.T) {
	if got := Short([]byte("hello"), 12); got != "2cf24dba5fb0" {
		t.Errorf("Short = %q", got)
	}
	if got := Short([]byte("hello"), 0); len(got) != 64 {
		t.Errorf("Short(0) length = %d, want 64", len(got))
	}
}

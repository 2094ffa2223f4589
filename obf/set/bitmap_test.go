package set

import "testing"

func TestBitmap(t *testing.T) {
	s := MakeBitmap(16)

	s.Set(3)
	s.Set(100)
	s.Set(100)

	if !s.IsSet(3) || !s.IsSet(100) || s.IsSet(4) {
		t.Errorf("membership broken")
	}

	if n := s.Size(); n != 2 {
		t.Errorf("size: %d, want 2", n)
	}

	var got []int

	s.Range(func(i int) bool {
		got = append(got, i)
		return true
	})

	if len(got) != 2 || got[0] != 3 || got[1] != 100 {
		t.Errorf("range: %v", got)
	}

	s.Clear(3)

	if s.IsSet(3) {
		t.Errorf("clear broken")
	}

	s.Reset()

	if s.Size() != 0 {
		t.Errorf("reset broken")
	}
}

package tokenutil

import "testing"

func TestEstimateFast(t *testing.T) {
	cases := map[string]int{
		"":                       0,
		"   ":                    0,
		"a":                      1,
		"draw a red circle":      4,
		"abcdefghijklmnopqrstuv": 5,
	}
	for input, want := range cases {
		if got := EstimateFast(input); got != want {
			t.Fatalf("EstimateFast(%q)=%d want %d", input, got, want)
		}
	}
}

package simhash

import (
	"image"
	"image/color"
	"testing"
)

func TestText_Identical(t *testing.T) {
	fp1 := Text("page one of the deck")
	fp2 := Text("page one of the deck")
	if fp1 != fp2 {
		t.Errorf("identical texts produced different fingerprints: %064b vs %064b", fp1, fp2)
	}
}

func TestText_EmptyInput(t *testing.T) {
	if fp := Text("   \t\n  "); fp != 0 {
		t.Errorf("whitespace-only input should produce fingerprint 0, got: %064b", fp)
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xFF, 0xFF, 0},
		{"all different", 0, ^uint64(0), 64},
		{"one bit", 0, 1, 1},
		{"two bits", 0, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Distance(tt.a, tt.b); got != tt.want {
				t.Errorf("Distance(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestImage_IdenticalFrames(t *testing.T) {
	a := solid(320, 240, color.White)
	b := solid(320, 240, color.White)
	if Image(a) != Image(b) {
		t.Error("identical frames should produce the same fingerprint")
	}
}

func TestImage_DifferentFrames(t *testing.T) {
	white := solid(320, 240, color.White)

	half := solid(320, 240, color.White)
	for y := 0; y < 240; y++ {
		for x := 0; x < 160; x++ {
			half.Set(x, y, color.Black)
		}
	}

	if Image(white) == Image(half) {
		t.Error("visibly different frames should not share a fingerprint")
	}
}

func TestImage_Empty(t *testing.T) {
	if fp := Image(image.NewRGBA(image.Rect(0, 0, 0, 0))); fp != 0 {
		t.Errorf("empty frame should produce 0, got %d", fp)
	}
}

func TestImage_SmallerThanGrid(t *testing.T) {
	if fp := Image(solid(3, 2, color.Black)); fp == 0 {
		t.Error("tiny frame should still produce a fingerprint")
	}
}

func TestDOM_SameStructure(t *testing.T) {
	html1 := `<html><body><form><input type="email"><button>Go</button></form></body></html>`
	html2 := `<html><body><form><input type="email"><button>Continue</button></form></body></html>`

	if DOM(html1) != DOM(html2) {
		t.Error("text-only differences should not change the DOM fingerprint")
	}
}

func TestDOM_RevealedPasscode(t *testing.T) {
	before := `<html><body><form><input type="email"><input type="password" style="display: none"><button>Go</button></form></body></html>`
	after := `<html><body><form><input type="email"><input type="password"><button>Go</button></form></body></html>`

	if DOM(before) == DOM(after) {
		t.Error("revealing a password field should change the DOM fingerprint")
	}
}

func TestDOM_Empty(t *testing.T) {
	if fp := DOM(""); fp != 0 {
		t.Errorf("empty HTML should produce 0, got %064b", fp)
	}
	if fp := DOM("just text"); fp != 0 {
		t.Errorf("tagless HTML should produce 0, got %064b", fp)
	}
}

func TestStructureTokens(t *testing.T) {
	got := structureTokens(`<div><input type="Email" name="e"><input hidden type="password"><input></div>`)
	want := []string{"div", "input:email", "input:password:hidden", "input"}

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMakeShingles(t *testing.T) {
	shingles := makeShingles([]string{"a", "b", "c", "d"}, 3)
	expected := []string{"a_b_c", "b_c_d"}

	if len(shingles) != len(expected) {
		t.Fatalf("expected %d shingles, got %d: %v", len(expected), len(shingles), shingles)
	}
	for i, s := range shingles {
		if s != expected[i] {
			t.Errorf("shingle[%d] = %q, want %q", i, s, expected[i])
		}
	}
	if makeShingles([]string{"a", "b"}, 3) != nil {
		t.Error("expected nil for fewer tokens than n")
	}
}

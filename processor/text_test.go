package processor

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ZaguanLabs/nmtflow"
)

func identity(doc *nmtflow.Document) map[int]string {
	m := make(map[int]string, len(doc.Units))
	for _, u := range doc.Units {
		m[u.Index] = u.Text
	}
	return m
}

func TestTextProcessor_Paragraphs(t *testing.T) {
	p := NewTextProcessor()

	doc, err := p.Segment("Hola Ana,\n\nGracias por todo.\nUn abrazo.\n\n\n\nJuan")
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	want := []string{"Hola Ana,", "Gracias por todo.\nUn abrazo.", "Juan"}
	got := doc.Texts()
	if len(got) != len(want) {
		t.Fatalf("got %d units %q, want %q", len(got), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("unit %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTextProcessor_LineEndings(t *testing.T) {
	p := NewTextProcessor()

	tests := []struct {
		name      string
		input     string
		units     []string
		separator string
	}{
		{"single crlf", "Línea uno\r\nLínea dos", []string{"Línea uno\r\nLínea dos"}, ""},
		{"single cr", "Línea uno\rLínea dos", []string{"Línea uno\rLínea dos"}, ""},
		{"double crlf", "Línea uno\r\n\r\nLínea dos", []string{"Línea uno", "Línea dos"}, "\r\n\r\n"},
		{"crlf with spaces", "Uno\r\n  \t\r\nDos", []string{"Uno", "Dos"}, "\r\n  \t\r\n"},
		{"mixed", "Uno\n\r\nDos\r\nTres", []string{"Uno", "Dos\r\nTres"}, "\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := p.Segment(tt.input)
			if err != nil {
				t.Fatalf("Segment failed: %v", err)
			}
			got := doc.Texts()
			if len(got) != len(tt.units) {
				t.Fatalf("got %d units %q, want %q", len(got), got, tt.units)
			}
			for i := range tt.units {
				if got[i] != tt.units[i] {
					t.Errorf("unit %d = %q, want %q", i, got[i], tt.units[i])
				}
			}

			var seps []string
			for _, b := range doc.Blocks {
				if b.Kind == nmtflow.BlockSeparator {
					seps = append(seps, b.Raw)
				}
			}
			if tt.separator == "" && len(seps) != 0 {
				t.Errorf("expected no separators, got %q", seps)
			}
			if tt.separator != "" && (len(seps) != 1 || seps[0] != tt.separator) {
				t.Errorf("separators = %q, want [%q]", seps, tt.separator)
			}

			out, err := p.Rehydrate(doc, identity(doc))
			if err != nil {
				t.Fatalf("Rehydrate failed: %v", err)
			}
			if out != tt.input {
				t.Errorf("round trip = %q, want %q", out, tt.input)
			}
		})
	}
}

func TestTextProcessor_IdentityRoundTrip(t *testing.T) {
	p := NewTextProcessor(WithMaxUnitChars(40))

	inputs := []string{
		"",
		"   ",
		"Hola",
		"\n\nHola\n\n",
		"Uno.\r\n\r\nDos.\r\rTres.",
		"Párrafo uno.\n  \n\t\nPárrafo dos.  ",
		"  Espacios delante\n\n\n\n\ny detrás  \n",
		"Primera frase larga de verdad. Segunda frase también larga. Tercera frase para cerrar.",
		"Una línea sin puntos que es bastante larga\ny otra línea que también lo es bastante",
		strings.Repeat("Frase corta. ", 20),
	}

	for _, in := range inputs {
		doc, err := p.Segment(in)
		if err != nil {
			t.Fatalf("Segment(%q) failed: %v", in, err)
		}
		out, err := p.Rehydrate(doc, identity(doc))
		if err != nil {
			t.Fatalf("Rehydrate failed: %v", err)
		}
		if out != in {
			t.Errorf("identity round trip changed %q into %q", in, out)
		}

		var raw strings.Builder
		for _, b := range doc.Blocks {
			raw.WriteString(b.Raw)
		}
		if raw.String() != in {
			t.Errorf("blocks of %q do not concatenate to the input", in)
		}
	}
}

func TestTextProcessor_BlankParagraphsHaveNoUnits(t *testing.T) {
	p := NewTextProcessor()
	doc, _ := p.Segment("Hola\n\n   \n\nAdiós")

	if len(doc.Units) != 2 {
		t.Errorf("expected 2 units, got %q", doc.Texts())
	}
	for _, u := range doc.Units {
		if strings.TrimSpace(u.Text) != u.Text || u.Text == "" {
			t.Errorf("unit %q is not trimmed", u.Text)
		}
	}
}

func TestTextProcessor_SplitsLongParagraphOnSentences(t *testing.T) {
	p := NewTextProcessor(WithMaxUnitChars(30))

	doc, _ := p.Segment("Primera frase aquí. Segunda frase aquí. Tercera frase.")
	want := []string{"Primera frase aquí.", "Segunda frase aquí.", "Tercera frase."}

	got := doc.Texts()
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("unit %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTextProcessor_PacksSentencesUpToBudget(t *testing.T) {
	p := NewTextProcessor(WithMaxUnitChars(25))

	doc, _ := p.Segment("Uno. Dos. Tres. Cuatro. Cinco. Seis.")
	for _, u := range doc.Units {
		if n := utf8.RuneCountInString(u.Text); n > 25 {
			t.Errorf("unit %q has %d runes", u.Text, n)
		}
	}
	if len(doc.Units) != 2 {
		t.Errorf("expected sentences packed into 2 units, got %q", doc.Texts())
	}
}

func TestTextProcessor_NoSplitWithoutUppercase(t *testing.T) {
	p := NewTextProcessor(WithMaxUnitChars(20))

	// "3.5 kg" and "etc. y" are not sentence boundaries
	doc, _ := p.Segment("Pesa 3.5 kg, etc. y algo más\nsegunda línea")
	for _, u := range doc.Units {
		if strings.HasPrefix(u.Text, "y algo") {
			t.Errorf("split before a lowercase word: %q", doc.Texts())
		}
	}
}

func TestTextProcessor_FallsBackToLines(t *testing.T) {
	p := NewTextProcessor(WithMaxUnitChars(20))

	doc, _ := p.Segment("una línea bastante larga\notra línea también larga")
	want := []string{"una línea bastante larga", "otra línea también larga"}

	got := doc.Texts()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTextProcessor_Rehydrate(t *testing.T) {
	p := NewTextProcessor()
	doc, _ := p.Segment("Hola\n\n\nAdiós\n")

	out, err := p.Rehydrate(doc, map[int]string{0: "Hej", 1: "Farvel"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hej\n\n\nFarvel\n" {
		t.Errorf("got %q", out)
	}

	out, _ = p.Rehydrate(doc, map[int]string{1: "Farvel"})
	if out != "Hola\n\n\nFarvel\n" {
		t.Errorf("missing translation should keep the source, got %q", out)
	}
}

func TestTextProcessor_RehydrateNilDocument(t *testing.T) {
	if _, err := NewTextProcessor().Rehydrate(nil, nil); err == nil {
		t.Error("expected error for nil document")
	}
}

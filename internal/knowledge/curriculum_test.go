package knowledge

import (
	"strings"
	"testing"
)

const curriculumJSON = `{
	"subject": "matematik",
	"grades": {
		"11": [
			{
				"code": "MAT.11.3.1",
				"title": "Türev",
				"content": "Bir fonksiyonun bir noktadaki değişim hızı.",
				"terms": "türev limit süreklilik",
				"symbols": "f'(x), dy/dx"
			},
			{
				"code": "MAT.11.3.2"
			}
		]
	}
}`

func TestParseCurriculum(t *testing.T) {
	chunks, err := ParseCurriculum(strings.NewReader(curriculumJSON))
	if err != nil {
		t.Fatalf("ParseCurriculum: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 (empty topic skipped)", len(chunks))
	}

	c := chunks[0]
	if c.Collection != CollectionCurriculum {
		t.Errorf("Collection = %q", c.Collection)
	}
	for _, label := range []string{"Başlık: Türev", "İçerik:", "Terimler:", "Semboller: f'(x)"} {
		if !strings.Contains(c.Text, label) {
			t.Errorf("Text missing %q:\n%s", label, c.Text)
		}
	}
	if len(c.Keywords) != 3 || c.Keywords[0] != "türev" {
		t.Errorf("Keywords = %v", c.Keywords)
	}
	if c.Metadata["subject"] != "matematik" || c.Metadata["grade"] != "11" {
		t.Errorf("Metadata = %v", c.Metadata)
	}
	if c.Metadata["code"] != "MAT.11.3.1" || c.Metadata["topic"] != "türev" {
		t.Errorf("Metadata = %v", c.Metadata)
	}
}

func TestParseCurriculumStableIDs(t *testing.T) {
	first, err := ParseCurriculum(strings.NewReader(curriculumJSON))
	if err != nil {
		t.Fatalf("ParseCurriculum: %v", err)
	}
	second, err := ParseCurriculum(strings.NewReader(curriculumJSON))
	if err != nil {
		t.Fatalf("ParseCurriculum: %v", err)
	}
	if first[0].ID != second[0].ID {
		t.Errorf("IDs differ across parses: %q vs %q", first[0].ID, second[0].ID)
	}
}

func TestParseCurriculumErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing subject", `{"grades": {"9": [{"title": "Kümeler", "content": "x"}]}}`},
		{"no usable topics", `{"subject": "fizik", "grades": {"9": [{"code": "F.9.1"}]}}`},
		{"malformed json", `{"subject": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCurriculum(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

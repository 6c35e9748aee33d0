package expert

import (
	"context"
	"fmt"
	"strings"

	"github.com/okulai/okulai/internal/gen"
)

const synthesizeSystemPrompt = "Sen farklı ders uzmanlarının cevaplarını tek bir tutarlı yanıtta birleştiren bir editörsün. Kaynak numaralarını ([1], [2]) olduğu gibi koru."

// synthesize merges multiple expert drafts into one answer. Conflicting
// statements resolve toward the expert matching the dominant intent.
func (r *Router) synthesize(ctx context.Context, query, intent string, drafts []Draft) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Öğrencinin sorusu: %s\n\n", query)
	b.WriteString("Uzman cevapları:\n")
	for _, d := range drafts {
		name := d.Expert
		if e, ok := r.registry.Lookup(d.Expert); ok {
			name = e.Name
		}
		fmt.Fprintf(&b, "--- %s uzmanı ---\n%s\n\n", name, d.Text)
	}
	fmt.Fprintf(&b, "Bu cevapları tek bir tutarlı yanıtta birleştir. Cevaplar çelişiyorsa %s uzmanının cevabını esas al.", intent)

	resp, err := r.generator.Generate(ctx, gen.Request{
		System: synthesizeSystemPrompt,
		Prompt: b.String(),
	})
	if err != nil {
		return "", fmt.Errorf("synthesize drafts: %w", err)
	}
	return resp.Text, nil
}

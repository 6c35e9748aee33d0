package expert

import "fmt"

// TagGenel is the catch-all expert used when no subject classifies clearly.
const TagGenel = "genel"

// Expert is one subject persona. SystemPrompt is the Turkish instruction the
// generation service receives when this expert is invoked.
type Expert struct {
	Tag          string
	Name         string
	SystemPrompt string
	// Keywords drive the lexical classification fallback.
	Keywords []string
}

// Registry holds the registered experts in stable order.
type Registry struct {
	experts []Expert
	byTag   map[string]Expert
}

// NewRegistry creates a registry from the given experts.
func NewRegistry(experts []Expert) *Registry {
	byTag := make(map[string]Expert, len(experts))
	for _, e := range experts {
		byTag[e.Tag] = e
	}
	return &Registry{experts: experts, byTag: byTag}
}

// Lookup returns the expert for a tag.
func (r *Registry) Lookup(tag string) (Expert, bool) {
	e, ok := r.byTag[tag]
	return e, ok
}

// Genel returns the fallback expert.
func (r *Registry) Genel() Expert {
	return r.byTag[TagGenel]
}

// Tags returns all registered tags in registration order.
func (r *Registry) Tags() []string {
	tags := make([]string, len(r.experts))
	for i, e := range r.experts {
		tags[i] = e.Tag
	}
	return tags
}

// Experts returns the registered experts in registration order.
func (r *Registry) Experts() []Expert {
	return r.experts
}

func subjectPrompt(subject string) string {
	return fmt.Sprintf("Sen %s dersi YKS uzmanısın. Sana verilen kaynaklara dayanarak kapsamlı ve anlaşılır konu anlatımları yaparsın. Kullandığın kaynakları [1], [2] biçiminde numarayla belirt.", subject)
}

// DefaultRegistry returns the YKS subject experts plus the genel fallback.
func DefaultRegistry() *Registry {
	return NewRegistry([]Expert{
		{
			Tag:          "matematik",
			Name:         "Matematik",
			SystemPrompt: subjectPrompt("matematik"),
			Keywords:     []string{"matematik", "türev", "integral", "limit", "fonksiyon", "denklem", "geometri", "trigonometri", "logaritma", "polinom", "olasılık"},
		},
		{
			Tag:          "fizik",
			Name:         "Fizik",
			SystemPrompt: subjectPrompt("fizik"),
			Keywords:     []string{"fizik", "kuvvet", "hareket", "enerji", "elektrik", "manyetizma", "optik", "dalga", "basınç", "ivme", "newton"},
		},
		{
			Tag:          "kimya",
			Name:         "Kimya",
			SystemPrompt: subjectPrompt("kimya"),
			Keywords:     []string{"kimya", "atom", "molekül", "periyodik", "asit", "baz", "tepkime", "mol", "çözelti", "element", "bileşik"},
		},
		{
			Tag:          "biyoloji",
			Name:         "Biyoloji",
			SystemPrompt: subjectPrompt("biyoloji"),
			Keywords:     []string{"biyoloji", "hücre", "dna", "protein", "enzim", "fotosentez", "solunum", "kalıtım", "mitoz", "mayoz", "ekosistem"},
		},
		{
			Tag:          "tarih",
			Name:         "Tarih",
			SystemPrompt: subjectPrompt("tarih"),
			Keywords:     []string{"tarih", "osmanlı", "selçuklu", "devlet", "savaş", "antlaşma", "inkılap", "cumhuriyet", "atatürk", "fetih"},
		},
		{
			Tag:          "edebiyat",
			Name:         "Türk Dili ve Edebiyatı",
			SystemPrompt: subjectPrompt("Türk dili ve edebiyatı"),
			Keywords:     []string{"edebiyat", "şiir", "roman", "hikaye", "divan", "tanzimat", "şair", "yazar", "nazım", "cümle", "dil bilgisi"},
		},
		{
			Tag:          "cografya",
			Name:         "Coğrafya",
			SystemPrompt: subjectPrompt("coğrafya"),
			Keywords:     []string{"coğrafya", "iklim", "harita", "nüfus", "yer şekilleri", "akarsu", "toprak", "bölge", "kıta", "ölçek"},
		},
		{
			Tag:          "felsefe",
			Name:         "Felsefe",
			SystemPrompt: subjectPrompt("felsefe"),
			Keywords:     []string{"felsefe", "bilgi", "varlık", "ahlak", "etik", "mantık", "filozof", "düşünce", "sokrates", "platon"},
		},
		{
			Tag:          TagGenel,
			Name:         "Genel",
			SystemPrompt: "Sen YKS'ye hazırlanan öğrencilere yardımcı olan bir eğitim uzmanısın. Sana verilen kaynaklara dayanarak anlaşılır açıklamalar yaparsın. Kullandığın kaynakları [1], [2] biçiminde numarayla belirt.",
			Keywords:     nil,
		},
	})
}

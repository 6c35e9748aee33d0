package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// CurriculumTopic is one topic record inside a curriculum file.
type CurriculumTopic struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Terms   string `json:"terms"`   // "Terimler ve Kavramlar"
	Symbols string `json:"symbols"` // "Sembol ve Gösterimler"
}

// CurriculumFile is the structured curriculum record supplied by the
// ingestion collaborator: one subject, topics grouped by grade.
type CurriculumFile struct {
	Subject string                       `json:"subject"`
	Grades  map[string][]CurriculumTopic `json:"grades"`
}

// ParseCurriculum flattens a curriculum JSON document into chunks for the
// curriculum collection. Topics with no usable text are skipped.
func ParseCurriculum(r io.Reader) ([]Chunk, error) {
	var file CurriculumFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decoding curriculum file: %w", err)
	}
	if file.Subject == "" {
		return nil, fmt.Errorf("curriculum file missing subject")
	}

	var chunks []Chunk
	for grade, topics := range file.Grades {
		for _, topic := range topics {
			text := topicText(topic)
			if text == "" {
				continue
			}

			metadata := map[string]string{
				"subject": file.Subject,
				"grade":   grade,
				"source":  "curriculum",
			}
			if topic.Code != "" {
				metadata["code"] = topic.Code
			}
			if topic.Title != "" {
				metadata["topic"] = strings.ToLower(topic.Title)
			}

			chunks = append(chunks, Chunk{
				ID:         chunkID(file.Subject, grade, topic.Code, text),
				Collection: CollectionCurriculum,
				Text:       text,
				Keywords:   strings.Fields(strings.ToLower(topic.Terms)),
				Metadata:   metadata,
			})
		}
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("curriculum file for %q contains no usable topics", file.Subject)
	}
	return chunks, nil
}

// topicText builds the chunk text from all populated topic fields, labeled
// the way the source curriculum labels them.
func topicText(topic CurriculumTopic) string {
	var parts []string
	if topic.Title != "" {
		parts = append(parts, "Başlık: "+topic.Title)
	}
	if topic.Content != "" {
		parts = append(parts, "İçerik: "+topic.Content)
	}
	if topic.Terms != "" {
		parts = append(parts, "Terimler: "+topic.Terms)
	}
	if topic.Symbols != "" {
		parts = append(parts, "Semboller: "+topic.Symbols)
	}
	return strings.Join(parts, "\n")
}

// chunkID derives a stable content-addressed ID so re-ingesting the same
// curriculum is idempotent.
func chunkID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:16])
}

package vectorstore

import "ragchat/internal/domain"

// Fields names the stored source fields of an indexed element.
type Fields struct {
	Embedding   string
	Text        string
	ContentType string
	Bucket      string
	Key         string
}

// DefaultFields matches the schema written by the multimodal ingestion job.
var DefaultFields = Fields{
	Embedding:   "processed_element_embedding",
	Text:        "processed_element",
	ContentType: "raw_element_type",
	Bucket:      "s3_bucket",
	Key:         "image_s3_path",
}

// WithDefaults fills empty field names from DefaultFields.
func (f Fields) WithDefaults() Fields {
	if f.Embedding == "" {
		f.Embedding = DefaultFields.Embedding
	}
	if f.Text == "" {
		f.Text = DefaultFields.Text
	}
	if f.ContentType == "" {
		f.ContentType = DefaultFields.ContentType
	}
	if f.Bucket == "" {
		f.Bucket = DefaultFields.Bucket
	}
	if f.Key == "" {
		f.Key = DefaultFields.Key
	}
	return f
}

// SourceFields lists the payload fields a search needs returned.
func (f Fields) SourceFields() []string {
	return []string{f.Text, f.ContentType, f.Bucket, f.Key}
}

// HitFromPayload maps a stored document payload to a search hit.
// Missing or non-string fields are left empty.
func HitFromPayload(payload map[string]any, f Fields, score float64) domain.SearchHit {
	return domain.SearchHit{
		Text:        str(payload, f.Text),
		ContentType: str(payload, f.ContentType),
		Bucket:      str(payload, f.Bucket),
		Key:         str(payload, f.Key),
		Score:       score,
	}
}

func str(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

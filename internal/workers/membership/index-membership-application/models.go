// internal/workers/membership/index-membership-application/models.go
package indexmembershipapplication

const DefaultIndexName = "membership-applications"

// IndexMapping is created on startup when the index does not exist yet.
const IndexMapping = `{
  "mappings": {
    "properties": {
      "applicationId":       {"type": "keyword"},
      "fullName":            {"type": "text"},
      "email":               {"type": "keyword"},
      "city":                {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "country":             {"type": "keyword"},
      "preferredGenres":     {"type": "keyword"},
      "readingFrequency":    {"type": "keyword"},
      "accessibilityNeeds":  {"type": "boolean"},
      "subscribeNewsletter": {"type": "boolean"},
      "applicationFee":      {"type": "integer"},
      "status":              {"type": "keyword"},
      "createdAt":           {"type": "date"},
      "indexedAt":           {"type": "date"}
    }
  }
}`

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	ApplicationID string `json:"applicationId"`
	IndexName     string `json:"indexName"`
	Result        string `json:"indexResult"` // "created" or "updated"
	IndexedAt     string `json:"indexedAt"`
}

// SearchDocument is what librarians search on. Contact details beyond the
// email stay in postgres.
type SearchDocument struct {
	ApplicationID       string   `json:"applicationId"`
	FullName            string   `json:"fullName"`
	Email               string   `json:"email"`
	City                string   `json:"city"`
	Country             string   `json:"country"`
	PreferredGenres     []string `json:"preferredGenres"`
	ReadingFrequency    string   `json:"readingFrequency"`
	AccessibilityNeeds  bool     `json:"accessibilityNeeds"`
	SubscribeNewsletter bool     `json:"subscribeNewsletter"`
	ApplicationFee      int      `json:"applicationFee"`
	Status              string   `json:"status"`
	CreatedAt           string   `json:"createdAt"`
	IndexedAt           string   `json:"indexedAt"`
}

type indexResponse struct {
	Result string `json:"result"`
}

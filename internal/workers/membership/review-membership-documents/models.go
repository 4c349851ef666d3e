// internal/workers/membership/review-membership-documents/models.go
package reviewmembershipdocuments

type Input struct {
	ApplicationID     string `json:"applicationId"`
	DocumentsUploaded bool   `json:"documentsUploaded"`
	HasAdditionalDocs bool   `json:"hasAdditionalDocs"`
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	Status            string `json:"applicationStatus"`
	DocumentsComplete bool   `json:"documentsComplete"`
	ReviewedAt        string `json:"reviewedAt"` // ISO 8601
}

// internal/models/application.go
package models

// ApplicationPayload is the JSON body POSTed to the membership endpoint.
// Document fields carry null or the "Documents uploaded" sentinel, never
// file content.
type ApplicationPayload struct {
	Draft
	IdentityDocument    *string `json:"identityDocument"`
	ProofOfAddress      *string `json:"proofOfAddress"`
	AdditionalDocuments *string `json:"additionalDocuments"`
}

// Application is a stored membership application.
type Application struct {
	ID             string             `json:"id"`
	Email          string             `json:"email"`
	FirstName      string             `json:"firstName"`
	LastName       string             `json:"lastName"`
	Phone          string             `json:"phone"`
	ApplicationFee int                `json:"applicationFee"`
	Status         string             `json:"status"`
	Payload        ApplicationPayload `json:"payload"`
	CreatedAt      string             `json:"createdAt"`
	UpdatedAt      string             `json:"updatedAt"`
}

package model

import (
	"fmt"
	"strings"
	"time"
)

// Document is the metadata record for one uploaded file plus its review status.
// This is a pure domain model with no database-specific dependencies or tags.
type Document struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	EntityType   EntityType   `json:"entity_type"`
	EntityID     string       `json:"entity_id"`
	DocumentType DocumentType `json:"document_type"`
	FilePath     string       `json:"file_path"`
	FileName     string       `json:"file_name"`
	MimeType     string       `json:"mime_type"`
	Size         int64        `json:"size"`
	Status       Status       `json:"status"`
	VerifiedBy   *string      `json:"verified_by"`
	VerifiedAt   *time.Time   `json:"verified_at"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Status is the review state of a document.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusVerified Status = "VERIFIED"
	StatusRejected Status = "REJECTED"
)

// ParseStatus accepts any of the three states.
func ParseStatus(s string) (Status, error) {
	switch st := Status(normalize(s)); st {
	case StatusPending, StatusVerified, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// ParseVerdict accepts only the states a reviewer may set.
func ParseVerdict(s string) (Status, error) {
	switch st := Status(normalize(s)); st {
	case StatusVerified, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("status must be %s or %s", StatusVerified, StatusRejected)
}

// EntityType names the business object a document is attached to.
type EntityType string

const (
	EntityVehicle            EntityType = "VEHICLE"
	EntityLicenseApplication EntityType = "LICENSE_APPLICATION"
	EntityChallan            EntityType = "CHALLAN"
	EntityAppointment        EntityType = "APPOINTMENT"
	EntityUserProfile        EntityType = "USER_PROFILE"
)

var entityTypes = []EntityType{
	EntityVehicle,
	EntityLicenseApplication,
	EntityChallan,
	EntityAppointment,
	EntityUserProfile,
}

// ParseEntityType matches s case-insensitively against the known entity types.
func ParseEntityType(s string) (EntityType, error) {
	n := EntityType(normalize(s))
	for _, et := range entityTypes {
		if et == n {
			return et, nil
		}
	}
	return "", fmt.Errorf("invalid entity_type %q", s)
}

// DocumentType classifies what a file proves.
type DocumentType string

const (
	DocAadhaar            DocumentType = "AADHAAR"
	DocPAN                DocumentType = "PAN"
	DocPassport           DocumentType = "PASSPORT"
	DocVoterID            DocumentType = "VOTER_ID"
	DocAddressProof       DocumentType = "ADDRESS_PROOF"
	DocAgeProof           DocumentType = "AGE_PROOF"
	DocPhoto              DocumentType = "PHOTO"
	DocSignature          DocumentType = "SIGNATURE"
	DocMedicalCertificate DocumentType = "MEDICAL_CERTIFICATE"
	DocInsurance          DocumentType = "INSURANCE"
	DocPUCCertificate     DocumentType = "PUC_CERTIFICATE"
	DocInvoice            DocumentType = "INVOICE"
	DocForm20             DocumentType = "FORM_20"
	DocOther              DocumentType = "OTHER"
)

var documentTypes = []DocumentType{
	DocAadhaar, DocPAN, DocPassport, DocVoterID, DocAddressProof, DocAgeProof,
	DocPhoto, DocSignature, DocMedicalCertificate, DocInsurance,
	DocPUCCertificate, DocInvoice, DocForm20, DocOther,
}

// ParseDocumentType matches s case-insensitively against the known document types.
func ParseDocumentType(s string) (DocumentType, error) {
	n := DocumentType(normalize(s))
	for _, dt := range documentTypes {
		if dt == n {
			return dt, nil
		}
	}
	return "", fmt.Errorf("invalid document_type %q", s)
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

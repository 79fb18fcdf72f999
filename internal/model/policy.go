package model

import "time"

// Carriers accepted in policies.company_name. "OTHER" is the default.
var Companies = []string{
	"HDFC ERGO",
	"HDFC LIFE",
	"LIC",
	"STAR HEALTH",
	"CARE HEALTH",
	"OTHER",
}

// ValidCompany reports whether name is one of the accepted carriers.
func ValidCompany(name string) bool {
	for _, c := range Companies {
		if c == name {
			return true
		}
	}
	return false
}

// Policy represents an insurance contract owned by exactly one customer
// and managed by exactly one agent. policy_number is unique across all
// policies at all times. The attached document lives in-row as a blob;
// uploading again overwrites it.
//
// Fields:
//
//	ID               – primary key identifier.
//	Title            – short policy title.
//	Description      – free-form description.
//	PolicyNumber     – globally unique policy number.
//	MobileNo         – contact mobile number for the policy.
//	SumAssured       – coverage amount.
//	CompanyName      – one of Companies.
//	Premium          – premium amount.
//	StartDate        – coverage start.
//	RenewalDate      – next renewal due date.
//	CustomerID       – owning customer.
//	AgentID          – managing agent.
//	IsActive         – active/inactive toggle; renewal always reactivates.
//	LastRenewalDate  – when the policy was last renewed (nullable).
//	DocumentName     – original filename of the attached PDF (nullable).
//	DocumentType     – content type of the attachment (nullable).
//	DocumentUploaded – when the attachment was stored (nullable).
type Policy struct {
	ID               uint64     // policies.id
	Title            string     // policies.title
	Description      string     // policies.description
	PolicyNumber     string     // policies.policy_number
	MobileNo         string     // policies.mobile_no
	SumAssured       float64    // policies.sum_assured
	CompanyName      string     // policies.company_name
	Premium          float64    // policies.premium
	StartDate        time.Time  // policies.start_date
	RenewalDate      time.Time  // policies.renewal_date
	CustomerID       uint64     // policies.customer_id
	AgentID          uint64     // policies.agent_id
	IsActive         bool       // policies.is_active
	LastRenewalDate  *time.Time // policies.last_renewal_date (nullable)
	DocumentName     *string    // policies.document_name (nullable)
	DocumentType     *string    // policies.document_type (nullable)
	DocumentUploaded *time.Time // policies.document_uploaded_at (nullable)
	CreatedAt        time.Time  // policies.created_at
	UpdatedAt        time.Time  // policies.updated_at
}

// HasDocument reports whether a document is attached.
func (p *Policy) HasDocument() bool { return p.DocumentName != nil }

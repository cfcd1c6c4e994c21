package model

import "time"

// Document is the relational record for an ingested file. The three ACL sets
// are independent visibility dimensions; a document with all three empty is
// public. ACL sets are only mutated by the access-grant propagator.
type Document struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	StoragePath   string    `json:"storagePath"`
	OwnerEmail    string    `json:"ownerEmail"`
	RolesAllowed  []string  `json:"rolesAllowed"`
	Projects      []string  `json:"projects"`
	EmailsAllowed []string  `json:"emailsAllowed"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Public reports whether the document carries no access restrictions.
func (d *Document) Public() bool {
	return len(d.RolesAllowed) == 0 && len(d.Projects) == 0 && len(d.EmailsAllowed) == 0
}

// AccessRequest status values. A request is created pending and transitions
// to a terminal status exactly once.
const (
	AccessRequestPending  = "pending"
	AccessRequestApproved = "approve"
	AccessRequestDenied   = "deny"
)

// AccessRequest records one user's request for access to one document.
type AccessRequest struct {
	ID             string     `json:"id"`
	DocID          string     `json:"docId"`
	RequestorEmail string     `json:"requestorEmail"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	DecidedAt      *time.Time `json:"decidedAt,omitempty"`
}

// Citation points a numbered context reference at its source document.
type Citation struct {
	N     int    `json:"n"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// HiddenDoc identifies a document that was relevant to a question but not
// visible to the caller, along with the owner to contact for access.
type HiddenDoc struct {
	DocID      string `json:"docId"`
	OwnerEmail string `json:"ownerEmail"`
}

// FileInfo is the provider-side metadata for a file discovered during an
// ingestion scan.
type FileInfo struct {
	ID   string
	Name string
	Path string
}

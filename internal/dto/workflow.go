package dto

// CreateConnectionRequest is the payload for sending a connection request.
type CreateConnectionRequest struct {
	ReceiverID string `json:"receiver_id" validate:"required,uuid"`
	Message    string `json:"message" validate:"max=1000"`
}

// RegisterEventRequest is the payload for registering to an event.
type RegisterEventRequest struct {
	SpecialRequirements string `json:"special_requirements" validate:"max=2000"`
}

// ApplyJobRequest is the payload for applying to a job posting. Document references are opaque
// URIs issued by the file storage service.
type ApplyJobRequest struct {
	CoverLetter         string   `json:"cover_letter" validate:"max=10000"`
	ResumeURI           string   `json:"resume_uri" validate:"omitempty,uri"`
	AdditionalDocuments []string `json:"additional_documents" validate:"max=10,dive,uri"`
}

// TransitionRequest asks for a workflow instance to move to a new status.
type TransitionRequest struct {
	Status string `json:"status" validate:"required"`
}

// ListQuery mirrors paging and status filters supported by workflow listings.
type ListQuery struct {
	Status    string `form:"status"`
	Direction string `form:"direction" validate:"omitempty,oneof=sent received"`
	Page      int    `form:"page" validate:"omitempty,min=1"`
	PageSize  int    `form:"page_size" validate:"omitempty,min=1,max=100"`
}

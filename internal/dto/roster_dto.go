package dto

// RosterAddRequest adds a student to the calling teacher's roster.
type RosterAddRequest struct {
	StudentEmail string `json:"student_email" validate:"required,email,max=255"`
}

// RosterResponse lists the emails on one side of the roster.
type RosterResponse struct {
	Emails []string `json:"emails"`
}

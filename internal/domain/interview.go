package domain

import "strconv"

// Person is the public profile of an interview participant.
type Person struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// Interview holds the details of an interview room returned by the API.
type Interview struct {
	ID          int64   `json:"id"`
	RoomID      string  `json:"room_id"`
	RecruiterID int64   `json:"recruiter_id"`
	CandidateID int64   `json:"candidate_id"`
	ScheduledAt string  `json:"scheduled_at"`
	Status      string  `json:"status"`
	Candidate   *Person `json:"candidate,omitempty"`
	Recruiter   *Person `json:"recruiter,omitempty"`
	Job         *struct {
		Title string `json:"title"`
	} `json:"job,omitempty"`
}

// RoleOf returns the role of userID in the interview.
func (i *Interview) RoleOf(userID string) (UserRole, bool) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return "", false
	}
	switch id {
	case i.RecruiterID:
		return UserRoleRecruiter, true
	case i.CandidateID:
		return UserRoleCandidate, true
	}
	return "", false
}

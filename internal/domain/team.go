package domain

import "time"

// Team is a named group of users sharing call and contact scope.
type Team struct {
	ID        string
	Name      string
	CreatorID string
	CreatedAt time.Time
}

// TeamMember links a user to a team. Composite-unique on (TeamID, UserID).
type TeamMember struct {
	TeamID    string
	UserID    string
	CreatedAt time.Time
}

// MemberInfo is the user-facing projection of a membership row.
type MemberInfo struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// TeamMemberDetail joins a membership row with the member's user record.
type TeamMemberDetail struct {
	TeamID string
	UserID string
	Name   string
	Email  string
}

// TeamWithMembers is the nested shape returned by team listings and stored
// in the team cache.
type TeamWithMembers struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	CreatorID string       `json:"creator_id"`
	Members   []MemberInfo `json:"members"`
}

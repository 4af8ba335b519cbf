package model

// Principal is the decoded credential of a caller.
type Principal struct {
	ID           string       `json:"id"`
	Type         SenderType   `json:"type"`
	Role         StaffRole    `json:"role,omitempty"`
	DocumentID   string       `json:"documentId,omitempty"`
	DocumentType DocumentType `json:"documentType,omitempty"`
}

func (p Principal) IsStaff() bool {
	return p.Type == SenderAdmin
}

func (p Principal) IsAdmin() bool {
	return p.Type == SenderAdmin && p.Role == RoleAdmin
}

func (p Principal) Sender() Sender {
	return Sender{ID: p.ID, Type: p.Type}
}

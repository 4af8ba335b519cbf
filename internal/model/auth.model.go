package model

type ClientLoginRequest struct {
	DocumentID   string       `json:"documentId"`
	DocumentType DocumentType `json:"documentType"`
}

type StaffLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by every login and registration. User is a
// *Client or a *StaffUser.
type AuthResponse struct {
	Token string     `json:"token"`
	Type  SenderType `json:"type"`
	User  any        `json:"user"`
}

type CreditRequest struct {
	Amount Cents `json:"amount"`
}

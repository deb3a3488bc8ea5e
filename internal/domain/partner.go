package domain

// Partner is the remote side of the current link.
// No transport or lifecycle logic here.
type Partner struct {
	TransportID TransportID `json:"transportId"`
	UserID      UserID      `json:"userId,omitempty"`
	Nick        string      `json:"nick,omitempty"`
}

// IsZero reports whether no partner is bound.
func (p Partner) IsZero() bool { return p.TransportID == "" }

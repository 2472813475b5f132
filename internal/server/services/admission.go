package services

import "github.com/richmiles/in-the-event-of-my-death/internal/common"

// AdmissionProof is what a caller presents to be allowed to store a
// secret: exactly one of PowAdmission or CapabilityAdmission.
type AdmissionProof interface {
	admission()
}

// PowAdmission is a solved proof-of-work challenge.
type PowAdmission struct {
	ChallengeID string
	Nonce       string
	Counter     uint64
	PayloadHash string
}

// CapabilityAdmission is a raw capability token.
type CapabilityAdmission struct {
	Token string
}

func (PowAdmission) admission()        {}
func (CapabilityAdmission) admission() {}

// NewAdmissionProof picks the admission path from optional inputs and
// rejects none or both.
func NewAdmissionProof(pow *PowAdmission, capabilityToken string) (AdmissionProof, error) {
	switch {
	case pow != nil && capabilityToken != "":
		return nil, common.ErrAdmissionAmbiguous
	case pow != nil:
		return *pow, nil
	case capabilityToken != "":
		return CapabilityAdmission{Token: capabilityToken}, nil
	default:
		return nil, common.ErrAdmissionRequired
	}
}

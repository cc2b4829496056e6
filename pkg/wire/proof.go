package wire

import "github.com/backkem/nizkauth/pkg/schnorr"

// ProofRecord packs a proof triple into a record of the given auth
// type: commitment, challenge and response occupy the three value
// slots.
func ProofRecord(authType AuthType, proof schnorr.Proof) *DataExchange {
	challenge := proof.Challenge
	response := proof.Response
	return &DataExchange{
		AuthType: uint8(authType),
		Value1:   proof.Commitment,
		Value2:   &challenge,
		Value3:   &response,
	}
}

// Proof unpacks the proof triple from a record. ok is false when the
// record does not carry all three values.
func (d *DataExchange) Proof() (proof schnorr.Proof, ok bool) {
	if d.Value2 == nil || d.Value3 == nil {
		return proof, false
	}
	proof.Commitment = d.Value1
	proof.Challenge = *d.Value2
	proof.Response = *d.Value3
	return proof, true
}

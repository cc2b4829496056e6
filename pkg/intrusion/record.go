// Package intrusion classifies rejected authentication proofs per peer
// and watches the rejection rate for flooding.
//
// Every rejected verification carries the split verdict of the NIZK
// check: whether the Schnorr equation held and whether the challenge MAC
// held. A forged Schnorr proof under a valid MAC points at the
// asymmetric key pair being attacked; a valid Schnorr proof under a bad
// MAC points at the shared symmetric secret. Random guesses fail both
// and increment neither counter.
package intrusion

// Record is the per-peer intrusion state. It is persisted by a Journal
// and mutated only through the Monitor.
type Record struct {
	// AsymCounter counts Schnorr-equation failures under an accepted MAC.
	AsymCounter uint8 `json:"asym_counter"`

	// SymCounter counts MAC failures under an accepted Schnorr equation.
	SymCounter uint8 `json:"sym_counter"`

	// WindowStart is the start of the current rejection-rate window in
	// Unix milliseconds.
	WindowStart int64 `json:"start_timestamp"`

	// Rejections counts rejected proofs in the current window.
	Rejections uint16 `json:"rejections"`

	// DoS is set while the rejection rate marks the peer as flooding.
	DoS bool `json:"dos_attack"`
}

// counterDeltas maps a split verdict to the counters it increments.
// Rejections with both checks failed look like random guessing and
// increment neither.
func counterDeltas(schnorrOK, macOK bool) (asym, sym uint8) {
	switch {
	case !schnorrOK && macOK:
		return 1, 0
	case schnorrOK && !macOK:
		return 0, 1
	default:
		return 0, 0
	}
}

package nizk

import (
	"fmt"

	"github.com/backkem/nizkauth/pkg/intrusion"
	"github.com/backkem/nizkauth/pkg/keystore"
	"github.com/backkem/nizkauth/pkg/schnorr"
)

// Prove generates a single-sided NIZK proof authenticating this side to
// the peer, then ratchets the shared state. The prover must ratchet
// unconditionally: the verifier will ratchet on accept, and the two
// copies of the counter have to move together.
func Prove(keys keystore.Store, me, peer uint32) (schnorr.Proof, error) {
	priv, _, err := keystore.ReadKey32(keys, keystore.PrivateKeyName(me))
	if err != nil {
		return schnorr.Proof{}, fmt.Errorf("nizk: fetch private key: %w", err)
	}
	sharedKey, counter, err := sharedState(keys, me, peer)
	if err != nil {
		return schnorr.Proof{}, err
	}

	_, proof, err := schnorr.NIZKProve(priv, sharedKey, counter)
	if err != nil {
		return schnorr.Proof{}, fmt.Errorf("nizk: generate proof: %w", err)
	}

	if err := ratchet(keys, me, peer, proof.Response, nil); err != nil {
		return schnorr.Proof{}, err
	}
	return proof, nil
}

// Verify checks a single-sided proof received from the peer. On accept
// the shared state ratchets forward in lockstep with the prover; on
// reject the split verdict goes to the monitor (if any) and the state
// stays put.
func Verify(keys keystore.Store, monitor *intrusion.Monitor, me, peer uint32, proof schnorr.Proof) (bool, error) {
	pub, _, err := keystore.ReadKey32(keys, keystore.PublicKeyName(peer))
	if err != nil {
		return false, fmt.Errorf("nizk: fetch peer public key: %w", err)
	}
	sharedKey, counter, err := sharedState(keys, me, peer)
	if err != nil {
		return false, err
	}

	schnorrOK, macOK := schnorr.VerifyNIZK(pub, sharedKey, counter, proof)
	accepted := schnorrOK && macOK

	if accepted {
		if err := ratchet(keys, me, peer, proof.Response, nil); err != nil {
			return false, err
		}
		return true, nil
	}

	if monitor != nil {
		if err := monitor.ManageIntrusion(peer, schnorrOK, macOK); err != nil {
			return false, fmt.Errorf("nizk: record rejection: %w", err)
		}
	}
	return false, nil
}

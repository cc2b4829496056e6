package nizk

import (
	"fmt"

	"github.com/backkem/nizkauth/pkg/crypto"
	"github.com/backkem/nizkauth/pkg/keystore"
)

// ratchet advances the shared state with a peer after a successful
// exchange: the shared secret is replaced by
//
//	K' = SHA3-256(K ‖ be32(N+1) ‖ response ‖ additional)
//
// and the counter moves forward by two (the derivation consumes N+1, the
// stored value becomes N+2). Prover, verifier and both mutual-auth sides
// all step through this same helper, which is what keeps the two copies
// of the state converging.
//
// additional is nil on the single-sided paths. In the mutual exchange
// the initiator passes (ownResponse, peerResponse) and the receiver
// (peerResponse, ownResponse), so both hash the initiator's response
// first.
func ratchet(keys keystore.Store, me, peer uint32, response [32]byte, additional []byte) error {
	sharedKey, keyHandle, err := keystore.ReadKey32(keys, keystore.SharedSecretName(me, peer))
	if err != nil {
		return fmt.Errorf("nizk: fetch shared secret: %w", err)
	}
	counter, counterHandle, err := keystore.ReadCounter(keys, me, peer)
	if err != nil {
		return fmt.Errorf("nizk: fetch shared counter: %w", err)
	}

	counter++
	counterBytes := keystore.EncodeCounter(counter)
	newKey := crypto.SHA3Sum256(sharedKey[:], counterBytes[:], response[:], additional)

	if err := keyHandle.Update(newKey[:]); err != nil {
		return fmt.Errorf("nizk: update shared secret: %w", err)
	}

	counter++
	if err := keystore.WriteCounter(counterHandle, counter); err != nil {
		return fmt.Errorf("nizk: update shared counter: %w", err)
	}
	return nil
}

// sharedState fetches the shared secret and encoded counter for a peer.
func sharedState(keys keystore.Store, me, peer uint32) ([32]byte, [keystore.CounterSize]byte, error) {
	sharedKey, _, err := keystore.ReadKey32(keys, keystore.SharedSecretName(me, peer))
	if err != nil {
		return [32]byte{}, [keystore.CounterSize]byte{}, fmt.Errorf("nizk: fetch shared secret: %w", err)
	}
	counter, _, err := keystore.ReadCounter(keys, me, peer)
	if err != nil {
		return [32]byte{}, [keystore.CounterSize]byte{}, fmt.Errorf("nizk: fetch shared counter: %w", err)
	}
	return sharedKey, keystore.EncodeCounter(counter), nil
}

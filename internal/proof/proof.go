// Package proof defines the completion-proof oracle consumed by the engine.
// The core treats proof systems as opaque: it only needs an accept/reject
// signal for a (task, worker, constraint, output commitment, proof) tuple.
package proof

import (
	"crypto/sha256"
	"encoding/hex"
)

// Verifier decides whether a private-task completion proof is acceptable.
// Implementations must be side-effect free: the engine calls Verify only
// after all cheap precondition checks have passed.
type Verifier interface {
	Verify(taskID, worker, constraintHash, outputCommitment string, proof []byte) bool
}

// HashVerifier is the default oracle: it accepts a proof when the proof
// bytes hash to the output commitment and the commitment, bound to the task
// identity, matches the task's constraint hash. This stands in for an
// external zero-knowledge verifier.
type HashVerifier struct{}

// Verify implements Verifier.
func (HashVerifier) Verify(taskID, worker, constraintHash, outputCommitment string, proofBytes []byte) bool {
	if constraintHash == "" || outputCommitment == "" || len(proofBytes) == 0 {
		return false
	}
	digest := sha256.Sum256(proofBytes)
	if hex.EncodeToString(digest[:]) != outputCommitment {
		return false
	}
	return Commitment(taskID, outputCommitment) == constraintHash
}

// Commitment derives the constraint hash a creator fixes at task creation
// from the expected output commitment.
func Commitment(taskID, outputCommitment string) string {
	digest := sha256.Sum256([]byte(taskID + ":" + outputCommitment))
	return hex.EncodeToString(digest[:])
}

// HashBytes returns the hex SHA-256 digest of the given bytes, used by the
// CLI to derive proof and evidence hashes.
func HashBytes(b []byte) string {
	digest := sha256.Sum256(b)
	return hex.EncodeToString(digest[:])
}
